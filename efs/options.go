package efs

import (
	"fmt"
	"io"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/blockcache"
	"github.com/sirupsen/logrus"
)

// Option customizes a filesystem when it's created or opened.
type Option func(*settings) error

type settings struct {
	cache         *blockcache.Cache
	cacheCapacity int
	logger        logrus.FieldLogger
}

// WithCacheCapacity sets the number of blocks the filesystem's cache holds,
// which must be at least [blockcache.MinCapacity]. It's ignored if [WithCache]
// is also given.
func WithCacheCapacity(capacity int) Option {
	return func(s *settings) error {
		if capacity < blockcache.MinCapacity {
			return easyfs.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"cache capacity must be at least %d, got %d",
					blockcache.MinCapacity,
					capacity,
				),
			)
		}
		s.cacheCapacity = capacity
		return nil
	}
}

// WithCache makes the filesystem use an existing cache instead of creating its
// own. The cache must hold at least [blockcache.MinCapacity] blocks.
func WithCache(cache *blockcache.Cache) Option {
	return func(s *settings) error {
		if cache.Capacity() < blockcache.MinCapacity {
			return easyfs.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"cache holds %d blocks, need at least %d",
					cache.Capacity(),
					blockcache.MinCapacity,
				),
			)
		}
		s.cache = cache
		return nil
	}
}

// WithLogger sets where the filesystem logs to. By default nothing is logged.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

func applyOptions(options []Option) (settings, error) {
	s := settings{cacheCapacity: blockcache.DefaultCapacity}
	for _, option := range options {
		err := option(&s)
		if err != nil {
			return s, err
		}
	}

	if s.cache == nil {
		s.cache = blockcache.New(s.cacheCapacity)
	}
	if s.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		s.logger = discard
	}
	return s, nil
}
