package repository

import (
	"testing"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupShippingRepoTest(t *testing.T) *GormShippingRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.ShippingMethod{},
		&models.ShippingMethodMapping{},
		&models.ShippingMethodMismatch{},
	); err != nil {
		t.Fatalf("migrate shipping tables failed: %v", err)
	}
	return NewShippingRepository(db)
}

func TestShippingMappingScopes(t *testing.T) {
	repo := setupShippingRepoTest(t)
	method := &models.ShippingMethod{ExternalID: "repo-ship-1", Name: "DPD Classic", IsActive: true}
	if err := repo.db.Create(method).Error; err != nil {
		t.Fatalf("create method failed: %v", err)
	}

	clientID := uint(511)
	channelID := uint(611)
	if err := repo.CreateMapping(&models.ShippingMethodMapping{
		ChannelType:      constants.ChannelTypeWooCommerce,
		ClientID:         &clientID,
		ShippingCode:     "dpd_classic",
		ShippingMethodID: method.ID,
	}); err != nil {
		t.Fatalf("create mapping failed: %v", err)
	}

	// 租户级映射：渠道级查询不可见，租户级可见
	mapping, err := repo.FindChannelMapping(constants.ChannelTypeWooCommerce, channelID, "dpd_classic", "")
	if err != nil {
		t.Fatalf("find channel mapping failed: %v", err)
	}
	if mapping != nil {
		t.Fatalf("client-scoped mapping must not match channel scope: %+v", mapping)
	}

	mapping, err = repo.FindClientMapping(constants.ChannelTypeWooCommerce, clientID, "dpd_classic", "")
	if err != nil {
		t.Fatalf("find client mapping failed: %v", err)
	}
	if mapping == nil || mapping.ShippingMethodID != method.ID {
		t.Fatalf("client mapping not found: %+v", mapping)
	}
	if mapping.ShippingMethod == nil || mapping.ShippingMethod.Name != "DPD Classic" {
		t.Fatalf("shipping method not preloaded: %+v", mapping.ShippingMethod)
	}

	// 不带任何线索的查询直接落空
	mapping, err = repo.FindClientMapping(constants.ChannelTypeWooCommerce, clientID, "", "")
	if err != nil {
		t.Fatalf("find with empty keys failed: %v", err)
	}
	if mapping != nil {
		t.Fatalf("empty code and title must not match: %+v", mapping)
	}
}

func TestShippingResolveMismatchOnlyUnresolved(t *testing.T) {
	repo := setupShippingRepoTest(t)
	first := &models.ShippingMethod{ExternalID: "repo-ship-2", Name: "First Pick", IsActive: true}
	second := &models.ShippingMethod{ExternalID: "repo-ship-3", Name: "Second Pick", IsActive: true}
	for _, method := range []*models.ShippingMethod{first, second} {
		if err := repo.db.Create(method).Error; err != nil {
			t.Fatalf("create method failed: %v", err)
		}
	}

	mismatch := &models.ShippingMethodMismatch{
		ClientID:     521,
		ChannelID:    621,
		ChannelType:  constants.ChannelTypeShopify,
		ShippingCode: "express_overnight",
	}
	if err := repo.CreateMismatch(mismatch); err != nil {
		t.Fatalf("create mismatch failed: %v", err)
	}

	exists, err := repo.HasUnresolvedMismatch(621, "express_overnight", "")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !exists {
		t.Fatalf("unresolved mismatch not detected")
	}

	if err := repo.ResolveMismatch(mismatch.ID, first.ID, "ops"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	resolved, err := repo.GetMismatchByID(mismatch.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !resolved.Resolved || resolved.ShippingMethodID == nil || *resolved.ShippingMethodID != first.ID {
		t.Fatalf("mismatch not resolved: %+v", resolved)
	}

	// 已解决的记录不可被二次改写
	if err := repo.ResolveMismatch(mismatch.ID, second.ID, "other"); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	final, err := repo.GetMismatchByID(mismatch.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if *final.ShippingMethodID != first.ID || final.ResolvedBy != "ops" {
		t.Fatalf("resolved mismatch was overwritten: %+v", final)
	}

	exists, err = repo.HasUnresolvedMismatch(621, "express_overnight", "")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if exists {
		t.Fatalf("resolved mismatch still reported as unresolved")
	}
}
