package watcher

import "errors"

var (
	ErrUnknownCluster = errors.New("unknown cluster")
	ErrFullSync       = errors.New("full sync")
)
