//go:build !unix

package runner

import "os"

func exitStatus(state *os.ProcessState) (int, string) {
	return state.ExitCode(), ""
}
