package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/giftvault-io/giftvault/internal/models"
	"github.com/giftvault-io/giftvault/internal/security"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:inventory_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := db.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	// Serialize writes so concurrent tests exercise the conditional update
	// rather than SQLite's writer lock.
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.AutoMigrate(&models.GiftCode{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	id, material, errEntry := security.NewKeyEntry()
	if errEntry != nil {
		t.Fatalf("new key entry: %v", errEntry)
	}
	ring, errRing := security.NewKeyring(id, map[string]string{id: material})
	if errRing != nil {
		t.Fatalf("new keyring: %v", errRing)
	}
	return NewService(openInventoryTestDB(t), ring)
}

func mustAddCode(t *testing.T, svc *Service, suffix string, denomination int64) *models.GiftCode {
	t.Helper()
	record, errAdd := svc.AddCode(context.Background(), AddCodeParams{
		Code:         CodePrefix + suffix,
		Denomination: denomination,
		ExpiresAt:    time.Now().UTC().Add(24 * time.Hour),
	})
	if errAdd != nil {
		t.Fatalf("add code %s: %v", suffix, errAdd)
	}
	return record
}

func TestAddCodeStoresEncryptedOnly(t *testing.T) {
	svc := newTestService(t)
	record, errAdd := svc.AddCode(context.Background(), AddCodeParams{
		Code:         "AMAZON-GIFT-CODE-ABC123",
		Denomination: 2500,
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
		Metadata:     map[string]any{"source": "batch-7"},
	})
	if errAdd != nil {
		t.Fatalf("add code: %v", errAdd)
	}
	if record.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if record.Status != models.StatusAvailable {
		t.Fatalf("status: got %s want %s", record.Status, models.StatusAvailable)
	}
	if record.PlaintextCode != "" {
		t.Fatalf("plaintext must not be populated on insertion")
	}
	if record.EncryptedCode == "AMAZON-GIFT-CODE-ABC123" || record.EncryptedCode == "" {
		t.Fatalf("code not encrypted at rest")
	}

	key, errKey := svc.keyring.Key(record.KeyID)
	if errKey != nil {
		t.Fatalf("resolve key: %v", errKey)
	}
	plaintext, errDecrypt := security.Decrypt(record.EncryptedCode, key)
	if errDecrypt != nil {
		t.Fatalf("decrypt stored payload: %v", errDecrypt)
	}
	if plaintext != "AMAZON-GIFT-CODE-ABC123" {
		t.Fatalf("decrypted payload mismatch: %q", plaintext)
	}
	if record.Metadata["source"] != "batch-7" {
		t.Fatalf("metadata not preserved: %v", record.Metadata)
	}
}

func TestAddCodeValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddCode(ctx, AddCodeParams{Code: "bogus", Denomination: 100, ExpiresAt: time.Now().Add(time.Hour)}); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected invalid format, got %v", err)
	}
	if _, err := svc.AddCode(ctx, AddCodeParams{Code: "AMAZON-GIFT-CODE-ABC123", Denomination: 0, ExpiresAt: time.Now().Add(time.Hour)}); !errors.Is(err, ErrInvalidDenomination) {
		t.Fatalf("expected invalid denomination, got %v", err)
	}

	mustAddCode(t, svc, "DUPLI1", 500)
	if _, err := svc.AddCode(ctx, AddCodeParams{Code: CodePrefix + "DUPLI1", Denomination: 500, ExpiresAt: time.Now().Add(time.Hour)}); !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
}

func seedAllocationFixture(t *testing.T, svc *Service) {
	t.Helper()
	mustAddCode(t, svc, "AAAA25", 2500)
	mustAddCode(t, svc, "BBBB10", 1000)
	mustAddCode(t, svc, "CCCC05", 500)
	mustAddCode(t, svc, "DDDD25", 2500)
}

func TestAllocateExactMatch(t *testing.T) {
	svc := newTestService(t)
	seedAllocationFixture(t, svc)

	result, errAllocate := svc.Allocate(context.Background(), 3500)
	if errAllocate != nil {
		t.Fatalf("allocate: %v", errAllocate)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if len(result.AllocatedCodes) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(result.AllocatedCodes))
	}
	if result.TotalAllocated != 3500 {
		t.Fatalf("total allocated: got %d want 3500", result.TotalAllocated)
	}
	if result.RemainingAmount != 0 {
		t.Fatalf("remaining: got %d want 0", result.RemainingAmount)
	}
}

func TestAllocatePrefersLargestFittingPiece(t *testing.T) {
	svc := newTestService(t)
	seedAllocationFixture(t, svc)

	result, errAllocate := svc.Allocate(context.Background(), 3000)
	if errAllocate != nil {
		t.Fatalf("allocate: %v", errAllocate)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if len(result.AllocatedCodes) != 2 {
		t.Fatalf("expected 2 codes (2500+500), got %d", len(result.AllocatedCodes))
	}
	denominations := map[int64]bool{}
	for _, code := range result.AllocatedCodes {
		denominations[code.Denomination] = true
	}
	if !denominations[2500] || !denominations[500] {
		t.Fatalf("expected the 2500 and 500 codes, got %v", denominations)
	}
}

func TestAllocateInsufficientInventoryKeepsReservations(t *testing.T) {
	svc := newTestService(t)
	seedAllocationFixture(t, svc)

	result, errAllocate := svc.Allocate(context.Background(), 10000)
	if errAllocate != nil {
		t.Fatalf("allocate: %v", errAllocate)
	}
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.Error != "Insufficient gift codes available" {
		t.Fatalf("error: got %q", result.Error)
	}
	if result.TotalAllocated != 6500 {
		t.Fatalf("total allocated: got %d want 6500", result.TotalAllocated)
	}
	if result.RemainingAmount != 3500 {
		t.Fatalf("remaining: got %d want 3500", result.RemainingAmount)
	}

	// The partial reservation is not rolled back.
	var allocated int64
	svc.db.Model(&models.GiftCode{}).Where("status = ?", models.StatusAllocated).Count(&allocated)
	if allocated != 4 {
		t.Fatalf("expected all 4 codes reserved, got %d", allocated)
	}
}

func TestAllocateNeverOvershoots(t *testing.T) {
	svc := newTestService(t)
	mustAddCode(t, svc, "BIGG01", 5000)
	mustAddCode(t, svc, "BIGG02", 5000)

	// Aggregate value suffices but no exact combination exists.
	result, errAllocate := svc.Allocate(context.Background(), 7500)
	if errAllocate != nil {
		t.Fatalf("allocate: %v", errAllocate)
	}
	if result.Success {
		t.Fatalf("expected failure: greedy exact matching cannot overshoot")
	}
	if result.TotalAllocated != 5000 {
		t.Fatalf("total allocated: got %d want 5000", result.TotalAllocated)
	}
}

func TestAllocateConcurrentSingleCode(t *testing.T) {
	svc := newTestService(t)
	mustAddCode(t, svc, "RACE25", 2500)

	results := make([]*AllocationResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Allocate(context.Background(), 2500)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	successes := 0
	for _, result := range results {
		if result.Success {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}

	var allocated int64
	svc.db.Model(&models.GiftCode{}).Where("status = ?", models.StatusAllocated).Count(&allocated)
	if allocated != 1 {
		t.Fatalf("code double-allocated: %d rows", allocated)
	}
}

func TestReleaseCompensatesFailedAllocation(t *testing.T) {
	svc := newTestService(t)
	seedAllocationFixture(t, svc)
	ctx := context.Background()

	result, errAllocate := svc.Allocate(ctx, 10000)
	if errAllocate != nil {
		t.Fatalf("allocate: %v", errAllocate)
	}
	if result.Success {
		t.Fatalf("expected failure")
	}

	ids := make([]uint64, 0, len(result.AllocatedCodes))
	for _, code := range result.AllocatedCodes {
		ids = append(ids, code.ID)
	}
	released, errRelease := svc.Release(ctx, ids)
	if errRelease != nil {
		t.Fatalf("release: %v", errRelease)
	}
	if released != int64(len(ids)) {
		t.Fatalf("released: got %d want %d", released, len(ids))
	}

	var available int64
	svc.db.Model(&models.GiftCode{}).Where("status = ?", models.StatusAvailable).Count(&available)
	if available != 4 {
		t.Fatalf("expected 4 available after release, got %d", available)
	}
}

func TestRedeemAllocatedCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	record, errAdd := svc.AddCode(ctx, AddCodeParams{
		Code:         "AMAZON-GIFT-CODE-RDM001",
		Denomination: 2500,
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
		Metadata:     map[string]any{"source": "import"},
	})
	if errAdd != nil {
		t.Fatalf("add code: %v", errAdd)
	}
	if errStatus := svc.SetStatus(ctx, record.ID, models.StatusAllocated); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}

	redeemed, errRedeem := svc.Redeem(ctx, record.ID, "order-42")
	if errRedeem != nil {
		t.Fatalf("redeem: %v", errRedeem)
	}
	if redeemed.Status != models.StatusRedeemed {
		t.Fatalf("status: got %s", redeemed.Status)
	}
	if redeemed.PlaintextCode != "AMAZON-GIFT-CODE-RDM001" {
		t.Fatalf("plaintext: got %q", redeemed.PlaintextCode)
	}
	if redeemed.Metadata["orderId"] != "order-42" {
		t.Fatalf("orderId missing: %v", redeemed.Metadata)
	}
	if redeemed.Metadata["redeemedAt"] == nil {
		t.Fatalf("redeemedAt missing: %v", redeemed.Metadata)
	}
	if redeemed.Metadata["source"] != "import" {
		t.Fatalf("existing metadata not preserved: %v", redeemed.Metadata)
	}

	// Only the encrypted form remains at rest.
	var stored models.GiftCode
	if errFind := svc.db.First(&stored, record.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if stored.Status != models.StatusRedeemed {
		t.Fatalf("stored status: got %s", stored.Status)
	}
	if stored.PlaintextCode != "" {
		t.Fatalf("plaintext persisted")
	}
	if stored.Metadata["orderId"] != "order-42" {
		t.Fatalf("stored metadata missing orderId: %v", stored.Metadata)
	}
}

func TestRedeemRejectsNonAllocated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	record := mustAddCode(t, svc, "AVAIL1", 1000)

	_, errRedeem := svc.Redeem(ctx, record.ID, "order-1")
	var invalidStatus *InvalidStatusError
	if !errors.As(errRedeem, &invalidStatus) {
		t.Fatalf("expected invalid status error, got %v", errRedeem)
	}
	if invalidStatus.Current != models.StatusAvailable {
		t.Fatalf("current status: got %s", invalidStatus.Current)
	}

	// Redeeming twice fails the same way.
	if errStatus := svc.SetStatus(ctx, record.ID, models.StatusAllocated); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}
	if _, errFirst := svc.Redeem(ctx, record.ID, "order-1"); errFirst != nil {
		t.Fatalf("redeem: %v", errFirst)
	}
	_, errSecond := svc.Redeem(ctx, record.ID, "order-1")
	if !errors.As(errSecond, &invalidStatus) {
		t.Fatalf("expected invalid status error on double redeem, got %v", errSecond)
	}
	if invalidStatus.Current != models.StatusRedeemed {
		t.Fatalf("current status: got %s", invalidStatus.Current)
	}
}

func TestRedeemRejectsExpiredAllocatedCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	record, errAdd := svc.AddCode(ctx, AddCodeParams{
		Code:         CodePrefix + "EXPIR1",
		Denomination: 1000,
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	})
	if errAdd != nil {
		t.Fatalf("add code: %v", errAdd)
	}
	if errStatus := svc.SetStatus(ctx, record.ID, models.StatusAllocated); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}

	if _, errRedeem := svc.Redeem(ctx, record.ID, "order-1"); !errors.Is(errRedeem, ErrCodeExpired) {
		t.Fatalf("expected code expired, got %v", errRedeem)
	}
}

func TestRedeemNotFound(t *testing.T) {
	svc := newTestService(t)
	if _, errRedeem := svc.Redeem(context.Background(), 999, "order-1"); !errors.Is(errRedeem, ErrNotFound) {
		t.Fatalf("expected not found, got %v", errRedeem)
	}
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	stale, errAdd := svc.AddCode(ctx, AddCodeParams{
		Code:         CodePrefix + "STALE1",
		Denomination: 1000,
		ExpiresAt:    time.Now().UTC().Add(-time.Hour),
	})
	if errAdd != nil {
		t.Fatalf("add code: %v", errAdd)
	}
	staleAllocated, errAdd2 := svc.AddCode(ctx, AddCodeParams{
		Code:         CodePrefix + "STALE2",
		Denomination: 1000,
		ExpiresAt:    time.Now().UTC().Add(-time.Hour),
	})
	if errAdd2 != nil {
		t.Fatalf("add code: %v", errAdd2)
	}
	if errStatus := svc.SetStatus(ctx, staleAllocated.ID, models.StatusAllocated); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}
	fresh := mustAddCode(t, svc, "FRESH1", 1000)

	swept, errSweep := svc.SweepExpired(ctx)
	if errSweep != nil {
		t.Fatalf("sweep: %v", errSweep)
	}
	if swept != 2 {
		t.Fatalf("swept: got %d want 2", swept)
	}

	for _, id := range []uint64{stale.ID, staleAllocated.ID} {
		var code models.GiftCode
		if errFind := svc.db.First(&code, id).Error; errFind != nil {
			t.Fatalf("reload %d: %v", id, errFind)
		}
		if code.Status != models.StatusExpired {
			t.Fatalf("code %d: got %s want %s", id, code.Status, models.StatusExpired)
		}
	}
	var freshCode models.GiftCode
	if errFind := svc.db.First(&freshCode, fresh.ID).Error; errFind != nil {
		t.Fatalf("reload fresh: %v", errFind)
	}
	if freshCode.Status != models.StatusAvailable {
		t.Fatalf("fresh code swept: %s", freshCode.Status)
	}

	again, errAgain := svc.SweepExpired(ctx)
	if errAgain != nil {
		t.Fatalf("second sweep: %v", errAgain)
	}
	if again != 0 {
		t.Fatalf("second sweep: got %d want 0", again)
	}
}

func TestStatsSnapshot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	mustAddCode(t, svc, "STAT01", 2500)
	mustAddCode(t, svc, "STAT02", 2500)
	allocated := mustAddCode(t, svc, "STAT03", 1000)
	redeemed := mustAddCode(t, svc, "STAT04", 500)
	expired := mustAddCode(t, svc, "STAT05", 500)

	if errStatus := svc.SetStatus(ctx, allocated.ID, models.StatusAllocated); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}
	if errStatus := svc.SetStatus(ctx, redeemed.ID, models.StatusRedeemed); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}
	if errStatus := svc.SetStatus(ctx, expired.ID, models.StatusExpired); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}

	stats, errStats := svc.Stats(ctx)
	if errStats != nil {
		t.Fatalf("stats: %v", errStats)
	}
	if stats.Total != 5 || stats.Available != 2 || stats.Allocated != 1 || stats.Redeemed != 1 || stats.Expired != 1 {
		t.Fatalf("counts: %+v", stats)
	}
	if stats.TotalValue != 7000 {
		t.Fatalf("total value: got %d want 7000", stats.TotalValue)
	}
	if stats.AvailableValue != 5000 {
		t.Fatalf("available value: got %d want 5000", stats.AvailableValue)
	}
	if stats.Denominations[2500] != 2 || stats.Denominations[1000] != 1 || stats.Denominations[500] != 2 {
		t.Fatalf("denominations: %v", stats.Denominations)
	}
}

func TestSetStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if errMissing := svc.SetStatus(ctx, 999, models.StatusExpired); !errors.Is(errMissing, ErrNotFoundOrUnchanged) {
		t.Fatalf("expected not found or unchanged, got %v", errMissing)
	}

	record := mustAddCode(t, svc, "ADMIN1", 1000)
	if errBad := svc.SetStatus(ctx, record.ID, "BROKEN"); errBad == nil {
		t.Fatalf("expected invalid status rejection")
	}
	if errSet := svc.SetStatus(ctx, record.ID, models.StatusExpired); errSet != nil {
		t.Fatalf("set status: %v", errSet)
	}
	var reloaded models.GiftCode
	if errFind := svc.db.First(&reloaded, record.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.Status != models.StatusExpired {
		t.Fatalf("status: got %s", reloaded.Status)
	}
}

func TestListCodes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	mustAddCode(t, svc, "LIST01", 500)
	mustAddCode(t, svc, "LIST02", 500)
	record := mustAddCode(t, svc, "LIST03", 1000)
	if errStatus := svc.SetStatus(ctx, record.ID, models.StatusAllocated); errStatus != nil {
		t.Fatalf("set status: %v", errStatus)
	}

	codes, total, errList := svc.ListCodes(ctx, models.StatusAvailable, 10, 0)
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if total != 2 || len(codes) != 2 {
		t.Fatalf("list available: total=%d len=%d", total, len(codes))
	}
	if _, _, errBad := svc.ListCodes(ctx, "BROKEN", 10, 0); errBad == nil {
		t.Fatalf("expected invalid status rejection")
	}
}
