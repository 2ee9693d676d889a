package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	CommentCountKeyPrefix = "confession:%s:comment_count"
	SnapshotKeyPrefix     = "confessions:snapshot:%s"
)

const (
	CommentCountTTL = 2 * time.Minute
	SnapshotTTL     = 7 * 24 * time.Hour
)

func CommentCountKey(ref string) string {
	return fmt.Sprintf(CommentCountKeyPrefix, ref)
}

func SnapshotKey(namespace string) string {
	if namespace == "" {
		namespace = "default"
	}
	return fmt.Sprintf(SnapshotKeyPrefix, namespace)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateCommentCount(ctx context.Context, ref string) {
	Invalidate(ctx, CommentCountKey(ref))
}
