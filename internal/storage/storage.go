// Package storage は成果物（zip）の保存先を抽象化します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotExist は対象のオブジェクトが存在しない場合に返されます。
var ErrNotExist = errors.New("object does not exist")

// Storage は成果物の保存・読み出し・削除を行います。
// key は "/" 区切りの相対パスです。
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// cleanKey は key を正規化し、ルート外を指すものを拒否します。
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage key is empty")
	}
	if strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return cleaned, nil
}
