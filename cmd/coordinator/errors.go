package main

import "errors"

var ErrStartCoordinator = errors.New("coordinator: start")
