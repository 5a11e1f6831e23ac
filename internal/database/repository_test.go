package database

import (
	"context"
	"os"
	"testing"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

var testClient *Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("WALLET_TEST_DATABASE_URL")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = NewClient(Config{DatabaseURL: connStr})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	if err := testClient.MigrateUp(context.Background()); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func TestUserRepository_FindOrCreateByIdentityKey(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	repo := NewUserRepository(testClient)
	ctx := context.Background()

	identityKey := "02aabb"
	first, err := repo.FindOrCreateByIdentityKey(ctx, identityKey)
	if err != nil {
		t.Fatalf("find or create user: %v", err)
	}
	if first.UserID == 0 {
		t.Fatal("expected non-zero user id")
	}

	second, err := repo.FindOrCreateByIdentityKey(ctx, identityKey)
	if err != nil {
		t.Fatalf("find or create user (second call): %v", err)
	}
	if second.UserID != first.UserID {
		t.Errorf("expected idempotent lookup, got user ids %d and %d", first.UserID, second.UserID)
	}
}

func TestBasketRepository_EnsureDefaultChangeBasket(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	users := NewUserRepository(testClient)
	baskets := NewBasketRepository(testClient)
	ctx := context.Background()

	user, err := users.FindOrCreateByIdentityKey(ctx, "02ccdd")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	basket, err := baskets.EnsureDefaultChangeBasket(ctx, user.UserID)
	if err != nil {
		t.Fatalf("ensure default change basket: %v", err)
	}
	if basket.Name != "default" {
		t.Errorf("expected basket name %q, got %q", "default", basket.Name)
	}

	again, err := baskets.EnsureDefaultChangeBasket(ctx, user.UserID)
	if err != nil {
		t.Fatalf("ensure default change basket (second call): %v", err)
	}
	if again.BasketID != basket.BasketID {
		t.Errorf("expected idempotent basket, got ids %d and %d", basket.BasketID, again.BasketID)
	}
}

func TestOutputRepository_WalletBalance(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	users := NewUserRepository(testClient)
	outputs := NewOutputRepository(testClient)
	txs := NewTransactionRepository(testClient)
	ctx := context.Background()

	user, err := users.FindOrCreateByIdentityKey(ctx, "02eeff")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	tx, err := txs.Create(ctx, &entity.Transaction{
		UserID:      user.UserID,
		Status:      wdk.TxStatusCompleted,
		Reference:   "ref-balance-test",
		IsOutgoing:  false,
		Satoshis:    1500,
		Description: "test funding",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	out := &entity.Output{
		UserID:        user.UserID,
		TransactionID: tx.TransactionID,
		Spendable:     true,
		Vout:          0,
		Satoshis:      1500,
		ProvidedBy:    wdk.ProvidedByStorage,
		Type:          wdk.OutputTypeP2PKH,
	}
	if _, err := outputs.Create(ctx, out); err != nil {
		t.Fatalf("create output: %v", err)
	}

	balance, err := outputs.WalletBalance(ctx, user.UserID)
	if err != nil {
		t.Fatalf("wallet balance: %v", err)
	}
	if balance < 1500 {
		t.Errorf("expected balance >= 1500, got %d", balance)
	}
}
