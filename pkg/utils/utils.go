package utils

import "fmt"

// GoRecover takes a function as input. If the function panics, the panic is
// recovered so a background goroutine can't take the process down.
func GoRecover(f func(), name string) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("\x1b[31m", "panic occurred at: \n", name, "\npanic: \n", r, "\x1b[0m")
		}
	}()
	f()
}
