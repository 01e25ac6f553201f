package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nabr/verification/internal/store"
)

// Admin commands talk to the verification store directly: verifier profile
// lifecycle and the audit trail are operator concerns, not orchestrator
// signals.

func openStore() *store.Store {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required for admin commands")
		os.Exit(1)
	}
	st, err := store.Open(dsn)
	if err != nil {
		fail("open store", err)
	}
	return st
}

func cmdVerifierAdd(ctx context.Context) {
	args := requireArgs(1, "<principal-id> [rating] [credential,credential...]")
	p := store.VerifierProfile{
		PrincipalID: args[0],
		Authorized:  true,
	}
	if len(args) > 1 {
		rating, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fail("parse rating", err)
		}
		p.Rating = rating
	}
	if len(args) > 2 {
		p.Credentials = strings.Split(args[2], ",")
	}

	st := openStore()
	defer st.Close()
	if err := st.UpsertVerifierProfile(ctx, p); err != nil {
		fail("upsert verifier", err)
	}
	fmt.Printf("Verifier %s authorized\n", p.PrincipalID)
}

func cmdVerifierShow(ctx context.Context) {
	args := requireArgs(1, "<principal-id>")

	st := openStore()
	defer st.Close()
	p, err := st.GetVerifierProfile(ctx, args[0])
	if err != nil {
		fail("get verifier", err)
	}
	if p == nil {
		fmt.Printf("No profile for %s\n", args[0])
		return
	}
	out, _ := json.MarshalIndent(p, "", "  ")
	fmt.Println(string(out))
}

func cmdVerifierRevoke(ctx context.Context) {
	args := requireArgs(2, "<principal-id> <reason>")

	st := openStore()
	defer st.Close()
	if err := st.RevokeVerifier(ctx, args[0], args[1]); err != nil {
		fail("revoke verifier", err)
	}
	fmt.Printf("Verifier %s revoked\n", args[0])
}

func cmdAudit(ctx context.Context) {
	args := requireArgs(1, "<subject-id> [since-days]")
	since := time.Time{}
	if len(args) > 1 {
		days, err := strconv.Atoi(args[1])
		if err != nil {
			fail("parse since-days", err)
		}
		since = time.Now().AddDate(0, 0, -days)
	}

	st := openStore()
	defer st.Close()
	events, err := st.ListEvents(ctx, args[0], since)
	if err != nil {
		fail("list audit events", err)
	}
	for _, e := range events {
		data := ""
		if len(e.Data) > 0 {
			raw, _ := json.Marshal(e.Data)
			data = " " + string(raw)
		}
		fmt.Printf("%s  %-24s %s%s\n", e.OccurredAt.Format(time.RFC3339), e.Kind, e.Method, data)
	}
	fmt.Printf("%d event(s)\n", len(events))
}
