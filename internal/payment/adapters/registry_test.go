package adapters

import (
	"errors"
	"testing"

	"github.com/smallbiznis/printdesk/internal/config"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
)

func TestNewGatewayUsesConfiguredProvider(t *testing.T) {
	gw, err := NewGateway(NewDefaultRegistry(), config.Config{Gateway: config.GatewayConfig{Provider: "Razorpay"}})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if gw.Provider() != "razorpay" {
		t.Fatalf("expected razorpay, got %s", gw.Provider())
	}
}

func TestNewGatewayUnknownProvider(t *testing.T) {
	_, err := NewGateway(NewDefaultRegistry(), config.Config{Gateway: config.GatewayConfig{Provider: "acme"}})
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}
