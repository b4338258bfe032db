package cmd

import (
	"fmt"

	"bookdex/internal/cache"
	"bookdex/internal/config"
)

// CacheCmd groups the cache maintenance subcommands
type CacheCmd struct {
	Clear      CacheClearCmd      `cmd:"" help:"Drop every cached lookup"`
	Invalidate CacheInvalidateCmd `cmd:"" help:"Drop one cached lookup by key"`
}

// CacheClearCmd represents the cache clear command
type CacheClearCmd struct{}

func (c *CacheClearCmd) Run(cfg *config.Config) error {
	store, err := cache.Open(cfg.Cache.DBFile)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d cached entries\n", n)
	return nil
}

// CacheInvalidateCmd represents the cache invalidate command
type CacheInvalidateCmd struct {
	Key string `arg:"" help:"Cache key: an ISBN-13 or a normalized title|author pair"`
}

func (c *CacheInvalidateCmd) Run(cfg *config.Config) error {
	store, err := cache.Open(cfg.Cache.DBFile)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Invalidate(c.Key)
}
