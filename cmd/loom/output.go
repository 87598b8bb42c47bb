package main

import "os"

func stderrTarget() *os.File { return os.Stderr }

func errWriter() *os.File { return os.Stderr }
