// Command guard-loadtest races concurrent consumers against the Redis
// session store and reports any nonce or submission id accepted twice.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goGuard/replay"
	"github.com/MrEthical07/goGuard/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 1000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (nonce + dedup)")
		racers      = flag.Int("racers", 4, "concurrent consumers per token")
		rps         = flag.Float64("rate", 0, "operations per second across all workers; 0 is unpaced")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers < 2 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency and ops must be > 0; racers must be >= 2")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewRedis(client, *prefix)
	guard, err := replay.NewGuard(store, replay.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "guard: %v\n", err)
		os.Exit(1)
	}

	ids := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range ids {
		ids[i] = fmt.Sprintf("sid-%d", i)
		now := time.Now()
		if err := store.Create(ctx, &session.Session{ID: ids[i], CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var limiter *rate.Limiter
	if *rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*rps), *concurrency)
	}
	info := replay.RequestInfo{ClientIP: "203.0.113.9", UserAgent: "guard-loadtest", Endpoint: "/load"}

	nonceStats := runPhase(ctx, limiter, ids, *ops, *concurrency, *racers,
		func(ctx context.Context, sid string) (string, error) {
			return guard.IssueNonce(ctx, sid, info)
		},
		func(ctx context.Context, sid, token string) error {
			return guard.ValidateNonce(ctx, sid, token, info)
		},
		replay.ErrNonceInvalidOrExpired,
	)
	dedupStats := runPhase(ctx, limiter, ids, *ops, *concurrency, *racers,
		func(context.Context, string) (string, error) {
			return replay.NewSubmissionID()
		},
		func(ctx context.Context, sid, token string) error {
			return guard.ValidateDuplicate(ctx, sid, token)
		},
		replay.ErrDuplicateSubmission,
	)

	fmt.Println("---- results ----")
	printStats("nonce", nonceStats)
	printStats("dedup", dedupStats)

	if nonceStats.doubleAccepts > 0 || dedupStats.doubleAccepts > 0 {
		os.Exit(1)
	}
}

type issueFunc func(ctx context.Context, sid string) (string, error)
type consumeFunc func(ctx context.Context, sid, token string) error

// runPhase issues one token per op and lets racers consumers fight over it.
// Exactly one consumer may succeed; every other must see rejected.
func runPhase(ctx context.Context, limiter *rate.Limiter, ids []string, ops, concurrency, racers int, issue issueFunc, consume consumeFunc, rejected error) phaseStats {
	var (
		wg            sync.WaitGroup
		cursor        int64
		failures      int64
		doubleAccepts int64
		lost          int64
		latencies     = make([]time.Duration, 0, ops*racers)
		mu            sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, racers)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						atomic.AddInt64(&failures, 1)
						return
					}
				}

				sid := ids[r.Intn(len(ids))]
				token, err := issue(ctx, sid)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}

				var (
					accepted int64
					race     sync.WaitGroup
					gate     = make(chan struct{})
				)
				local = local[:racers]
				for c := 0; c < racers; c++ {
					race.Add(1)
					go func(slot int) {
						defer race.Done()
						<-gate
						t0 := time.Now()
						err := consume(ctx, sid, token)
						local[slot] = time.Since(t0)
						switch {
						case err == nil:
							atomic.AddInt64(&accepted, 1)
						case !errors.Is(err, rejected):
							atomic.AddInt64(&failures, 1)
						}
					}(c)
				}
				close(gate)
				race.Wait()

				switch {
				case accepted > 1:
					atomic.AddInt64(&doubleAccepts, accepted-1)
				case accepted == 0:
					atomic.AddInt64(&lost, 1)
				}

				mu.Lock()
				latencies = append(latencies, local...)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	s := computeStats(total, latencies, failures)
	s.doubleAccepts = doubleAccepts
	s.lost = lost
	return s
}

type phaseStats struct {
	total         time.Duration
	ops           int
	failures      int64
	doubleAccepts int64
	lost          int64
	p50           time.Duration
	p95           time.Duration
	p99           time.Duration
	opsPerS       float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: consumes=%d failures=%d double_accepts=%d lost=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.doubleAccepts,
		s.lost,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
