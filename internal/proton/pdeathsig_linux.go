package proton

import "syscall"

// setPdeathsig makes the kernel signal the game if moma dies first.
func setPdeathsig(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGTERM
}
