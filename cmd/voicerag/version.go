package main

import (
	"context"
	"fmt"

	"github.com/a-h/voicerag"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Println(voicerag.Version)
	return nil
}
