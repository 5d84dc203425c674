package cache

import (
	"context"
	"errors"
	"log/slog"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Aliases is the alias cache composite. Same shape as the content
// composite: remote is authoritative, local is a best-effort mirror,
// AliasNotFound drives fallthrough.
type Aliases struct {
	remote storage.AliasProvider
	local  storage.AliasProvider
	log    *slog.Logger
}

var _ storage.AliasProvider = (*Aliases)(nil)

func NewAliases(remote, local storage.AliasProvider, log *slog.Logger) *Aliases {
	if log == nil {
		log = slog.Default()
	}
	return &Aliases{remote: remote, local: local, log: log}
}

func (a *Aliases) Resolve(ctx context.Context, key []byte) (ident.Identifier, error) {
	id, err := a.local.Resolve(ctx, key)
	if err == nil {
		return id, nil
	}
	populate := storage.IsNotFound(err)
	if !populate {
		a.log.Warn("cache: local alias resolve failed, falling through", "err", err)
	}

	id, err = a.remote.Resolve(ctx, key)
	if err != nil {
		return ident.Identifier{}, err
	}
	if populate {
		if _, merr := a.local.Register(ctx, key, id); merr != nil && !errors.Is(merr, storage.ErrAliasExists) {
			a.log.Warn("cache: local alias populate failed", "err", merr)
		}
	}
	return id, nil
}

func (a *Aliases) Register(ctx context.Context, key []byte, id ident.Identifier) (ident.Identifier, error) {
	got, err := a.remote.Register(ctx, key, id)
	if err != nil {
		return ident.Identifier{}, err
	}
	if _, merr := a.local.Register(ctx, key, got); merr != nil && !errors.Is(merr, storage.ErrAliasExists) {
		a.log.Warn("cache: local alias mirror failed", "err", merr)
	}
	return got, nil
}
