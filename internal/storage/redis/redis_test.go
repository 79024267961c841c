//go:build integration

package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testClient *goredis.Client

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start redis: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate redis: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testClient, err = NewClient(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	if err != nil {
		log.Fatalf("client: %v", err)
	}
	defer testClient.Close()

	return m.Run()
}

func TestQuotationCounter_DistinctAcrossInstances(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	a := NewQuotationCounter(testClient)
	a.now = func() time.Time { return day }
	b := NewQuotationCounter(testClient)
	b.now = func() time.Time { return day }

	const perInstance = 50
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for _, c := range []*QuotationCounter{a, b} {
		wg.Add(1)
		go func(c *QuotationCounter) {
			defer wg.Done()
			for i := 0; i < perInstance; i++ {
				q, err := c.Next(ctx)
				assert.NoError(t, err)
				mu.Lock()
				seen[q] = struct{}{}
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	assert.Len(t, seen, 2*perInstance)
	assert.Contains(t, seen, "QTN-20260501-000001")

	ttl, err := testClient.TTL(ctx, quotationKeyPrefix+"20260501").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 47*time.Hour)
}

func TestRegisterLocks(t *testing.T) {
	ctx := context.Background()
	locks := NewRegisterLocks(testClient, time.Second)

	held, err := locks.Acquire(ctx, "register-7")
	require.NoError(t, err)

	_, err = locks.Acquire(ctx, "register-7")
	assert.ErrorIs(t, err, ErrRegisterBusy)

	require.NoError(t, held.Refresh(ctx))
	require.NoError(t, held.Release(ctx))
	require.NoError(t, held.Release(ctx))

	again, err := locks.Acquire(ctx, "register-7")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
