package main

import "errors"

var ErrStartRuntime = errors.New("runtime: start")
