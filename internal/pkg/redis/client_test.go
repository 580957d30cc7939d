package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRunScriptUnregistered(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	client := Wrap(rdb)

	_, err := client.RunScript(context.Background(), "nope", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not registered")
}

func TestRunScriptRegistered(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	client := Wrap(rdb)

	client.LoadScript("ping", "return ARGV[1]")
	result, err := client.RunScript(context.Background(), "ping", []string{}, "42")
	require.NoError(t, err)
	require.Equal(t, "42", result)
}
