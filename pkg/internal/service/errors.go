package service

import (
	"context"
	"errors"

	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/storage"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// toErrorMessage 把领域错误映射为 Err 响应携带的错误. 无法归类的错误原样返回，由服务端记为 HandlerFailure.
func toErrorMessage(err error) error {
	if msg, ok := wire.AsErrorMessage(err); ok {
		return msg
	}

	var (
		filterErr  *indexer.FilterError
		storageErr *storage.Error
	)

	switch {
	case errors.As(err, &filterErr),
		errors.Is(err, indexer.ErrInvalid),
		errors.Is(err, indexer.ErrProtected):
		return wire.NewError(wire.KindBadRequest, "%v", err)
	case errors.Is(err, indexer.ErrNotFound):
		return wire.NewError(wire.KindNotFound, "%v", err)
	case errors.Is(err, storage.ErrUnavailable):
		return wire.NewError(wire.KindUnavailable, "%v", err)
	case errors.As(err, &storageErr):
		return wire.NewError(wire.KindStorage, "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wire.NewError(wire.KindUnavailable, "%v", err)
	default:
		return err
	}
}
