// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/store"
	"github.com/pftl/pftl/pkg/errutil"
)

// setupPostgresContainer starts PostgreSQL, migrates it and opens a store.
func setupPostgresContainer() (*store.PostgresResultStore, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pftl_test"),
		postgres.WithUsername("pftl"),
		postgres.WithPassword("pftl"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	_ = migrator.Close()

	results, err := store.OpenPostgres(ctx, connStr, store.ConnectOptions{Attempts: 3})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		_ = results.Close()
		_ = container.Terminate(ctx)
	}
	return results, cleanup, nil
}

func sampleResult(code string, completed time.Time) core.GameResult {
	return core.GameResult{
		ID:       core.NewULID(),
		GameCode: code,
		Winner:   "ship1",
		Outcome:  combat.Outcome{Winner: "ship1", Reason: combat.ReasonLastStanding},
		FinalSnapshot: []combat.Ship{
			{ID: "ship1", Name: "Alpha", Health: 55, MaxHealth: 100, Status: combat.StatusActive},
			{ID: "ship2", Name: "Beta", Health: 0, MaxHealth: 90, Status: combat.StatusDestroyed},
		},
		TotalTicks:  8,
		Seed:        7,
		LogDigest:   "abc",
		EventCount:  21,
		CompletedAt: completed.UTC().Truncate(time.Microsecond),
	}
}

var _ = Describe("PostgresResultStore", func() {
	var results *store.PostgresResultStore
	var cleanup func()

	BeforeEach(func() {
		var err error
		results, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("Save", func() {
		It("stores a result that Get returns", func() {
			ctx := context.Background()
			r := sampleResult("ABC123", time.Now())

			Expect(results.Save(ctx, r)).To(Succeed())

			got, err := results.Get(ctx, "ABC123")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(r.ID))
			Expect(got.Outcome).To(Equal(r.Outcome))
			Expect(got.FinalSnapshot).To(Equal(r.FinalSnapshot))
			Expect(got.CompletedAt.Equal(r.CompletedAt)).To(BeTrue())
		})

		It("ignores a second save of the same result", func() {
			ctx := context.Background()
			r := sampleResult("ABC123", time.Now())

			Expect(results.Save(ctx, r)).To(Succeed())
			Expect(results.Save(ctx, r)).To(Succeed())

			all, err := results.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("stores draws without a winner", func() {
			ctx := context.Background()
			r := sampleResult("DRAW01", time.Now())
			r.Winner = ""
			r.Outcome = combat.Outcome{Draw: true, Reason: combat.ReasonMaxTicks}

			Expect(results.Save(ctx, r)).To(Succeed())

			got, err := results.Get(ctx, "DRAW01")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Winner).To(BeEmpty())
			Expect(got.Outcome.Kind()).To(Equal("draw"))
		})
	})

	Describe("Get", func() {
		It("returns RESULT_NOT_FOUND for an unknown code", func() {
			_, err := results.Get(context.Background(), "ZZZZZZ")
			Expect(err).To(HaveOccurred())
			Expect(errutil.HasCode(err, core.CodeResultNotFound)).To(BeTrue())
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			ctx := context.Background()
			base := time.Now().Add(-time.Hour)
			for i, code := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
				Expect(results.Save(ctx, sampleResult(code, base.Add(time.Duration(i)*time.Minute)))).To(Succeed())
			}
		})

		It("returns newest first", func() {
			all, err := results.List(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].GameCode).To(Equal("CCCCCC"))
			Expect(all[2].GameCode).To(Equal("AAAAAA"))
		})

		It("respects the limit", func() {
			some, err := results.List(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(some).To(HaveLen(2))
		})
	})
})
