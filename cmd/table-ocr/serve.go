package main

import (
	"context"
	"fmt"

	"github.com/dmirauta/table-ocr/internal/server"
)

func (c *CLI) serve(ctx context.Context) error {
	if c.watch && c.imagePath == "" {
		return fmt.Errorf("-watch needs -image")
	}
	sess, err := c.newSession()
	if err != nil {
		return err
	}
	if c.watch {
		if err := server.WatchImage(ctx, sess, c.imagePath, nil); err != nil {
			return fmt.Errorf("watching %s: %w", c.imagePath, err)
		}
	}
	return server.New(sess).ListenAndServe(ctx, c.addr)
}
