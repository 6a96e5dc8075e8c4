// Package main provisions a new tenant: directory record, optional
// Stripe customer and trial subscription.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/myprojectr/backend/config"
	"github.com/myprojectr/backend/internal/apperr"
	"github.com/myprojectr/backend/internal/billing"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/internal/tenants"
	"github.com/myprojectr/backend/pkg/dynamo"
)

func main() {
	var (
		name      = flag.String("name", "", "company name (required)")
		email     = flag.String("email", "", "dedicated inbound email address (required)")
		subdomain = flag.String("subdomain", "", "tenant subdomain (required)")
		tier      = flag.String("tier", models.TierStarter, "subscription tier: starter, professional or enterprise")
		trialDays = flag.Int("trial-days", 14, "trial length in days")
		priceID   = flag.String("stripe-price", "", "Stripe price ID; skips billing setup when empty")
	)
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	if *name == "" || *email == "" || *subdomain == "" {
		fmt.Fprintln(os.Stderr, "usage: onboard -name <company> -email <address> -subdomain <sub> [-tier starter] [-trial-days 14] [-stripe-price price_xxx]")
		os.Exit(2)
	}
	if _, ok := models.TierQuotas[*tier]; !ok {
		fmt.Fprintf(os.Stderr, "unknown tier %q\n", *tier)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := dynamo.NewClient(ctx, dynamo.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		EndpointURL:     cfg.AWS.EndpointURL,
	}, logger)
	if err != nil {
		logger.Fatal("dynamodb", zap.Error(err))
	}
	repo := tenants.NewRepository(db, cfg.Tables.Tenants, logger)

	sub := strings.ToLower(*subdomain)
	if err := checkAvailable(ctx, repo, *email, sub); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("availability check", zap.Error(err))
	}

	trialEndsAt := time.Now().AddDate(0, 0, *trialDays).Unix()
	tenantID, err := repo.Create(ctx, tenants.CreateAttrs{
		Name:          *name,
		EmailAddress:  *email,
		Subdomain:     sub,
		Tier:          *tier,
		BillingStatus: models.BillingStatusTrial,
		TrialEndsAt:   trialEndsAt,
	})
	if err != nil {
		logger.Fatal("create tenant", zap.Error(err))
	}

	customerID := ""
	if *priceID != "" && cfg.Stripe.SecretKey != "" {
		stripe := billing.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, logger)
		customer, err := stripe.CreateCustomer(ctx, *email, *name, tenantID)
		if err != nil {
			logger.Fatal("create stripe customer", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		if _, err := stripe.CreateSubscription(ctx, customer.ID, *priceID, *trialDays); err != nil {
			logger.Fatal("create stripe subscription", zap.String("customer_id", customer.ID), zap.Error(err))
		}
		customerID = customer.ID
		if err := repo.Update(ctx, tenantID, models.TenantPatch{BillingCustomerID: &customerID}); err != nil {
			logger.Fatal("link billing customer", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	fmt.Printf("tenant_id:    %s\n", tenantID)
	fmt.Printf("email:        %s\n", *email)
	fmt.Printf("subdomain:    %s.%s\n", sub, cfg.Email.Domain)
	fmt.Printf("tier:         %s\n", *tier)
	fmt.Printf("trial_ends:   %s\n", time.Unix(trialEndsAt, 0).UTC().Format(time.RFC3339))
	if customerID != "" {
		fmt.Printf("stripe_customer: %s\n", customerID)
	}
}

func checkAvailable(ctx context.Context, repo *tenants.Repository, email, subdomain string) error {
	existing, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict("email %s already registered to tenant %s", email, existing.TenantID)
	}
	existing, err = repo.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict("subdomain %s already taken by tenant %s", subdomain, existing.TenantID)
	}
	return nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
