package modulestore

import "errors"

var (
	ErrOpenStore   = errors.New("modulestore: open database")
	ErrMigrate     = errors.New("modulestore: run migrations")
	ErrInsert      = errors.New("modulestore: insert module")
	ErrQuery       = errors.New("modulestore: query module")
	ErrWriteModule = errors.New("modulestore: write module to cache dir")
	ErrReadModule  = errors.New("modulestore: read module from cache dir")
	ErrPullImage   = errors.New("modulestore: pull OCI image")
	ErrNoLayers    = errors.New("modulestore: image has no layers")
	ErrCopyDir     = errors.New("modulestore: copy seed directory")
)
