package goGuard_test

import (
	"context"
	"errors"
	"fmt"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/replay"
	"github.com/redis/go-redis/v9"
)

// ExampleNew builds an engine with sessions and rate limits on Redis.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	engine, err := goGuard.New().
		WithConfig(goGuard.DefaultConfig()).
		WithRedis(rdb).
		WithRenderer(replay.NewImageRenderer()).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Login registers an account and logs in on in-memory stores.
func ExampleEngine_Login() {
	cfg := goGuard.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := goGuard.New().WithConfig(cfg).Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()
	ctx := context.Background()

	if _, err := engine.Register(ctx, goGuard.RegisterRequest{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
	}); err != nil {
		fmt.Println(err)
		return
	}

	_, err = engine.Login(ctx, "", "alice", "wrong password")
	fmt.Println(errors.Is(err, goGuard.ErrInvalidCredential))

	res, err := engine.Login(ctx, "", "alice", "correct horse")
	if err != nil {
		fmt.Println(err)
		return
	}
	state, _ := engine.Session(ctx, res.SessionID)
	fmt.Println(res.RequiresTOTP, state.FullyAuthenticated())
	// Output:
	// true
	// false true
}

// ExampleEngine_Gate checks a submission and reports the rejection reason.
func ExampleEngine_Gate() {
	engine, err := goGuard.New().Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()
	ctx := context.Background()

	sid, _ := engine.StartSession(ctx)
	err = engine.Gate().Check(ctx, &replay.Submission{SessionID: sid, FormID: "login", CSRFToken: "forged"})
	if r, ok := replay.AsRejection(err); ok {
		fmt.Println(r.Reason, "-", r.Message)
	}
	// Output: csrf - security token invalid, reload the page
}
