package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/pkg/storage"
	"go.uber.org/zap"
)

const catalogStatusCompleted = "completed"

var (
	ErrInvalidNftId = errors.New("nft id contains no digits")
	ErrRowPending   = errors.New("mirror row is pending allocation")
)

type ImageUrls struct {
	IpfsUrl    string `json:"ipfsUrl"`
	GatewayUrl string `json:"gatewayUrl"`
	NftImage   string `json:"nftImage"`
	IpfsHash   string `json:"ipfsHash"`
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type NFTMetadata struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

type UpdateResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	MintAddress    string `json:"mintAddress"`
	NftId          string `json:"nftId"`
	ImageUrl       string `json:"imageUrl"`
	GatewayUrl     string `json:"gatewayUrl"`
	IpfsHash       string `json:"ipfsHash"`
	RowsAffected   int64  `json:"rowsAffected"`
	CatalogCreated bool   `json:"catalogCreated"`
	CatalogUpdated bool   `json:"catalogUpdated"`
}

type Synthesizer struct {
	mirror  storage.MirrorStore
	catalog storage.CatalogStore
	logger  *zap.Logger
	config  *config.MetadataConfig
	now     func() time.Time
}

func NewSynthesizer(mirror storage.MirrorStore, catalog storage.CatalogStore, l *zap.Logger, cfg *config.Config) *Synthesizer {
	return &Synthesizer{
		mirror:  mirror,
		catalog: catalog,
		logger:  l,
		config:  &cfg.MetadataConfig,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateImageUrl keeps only the digits of id and pads them to four places.
func (s *Synthesizer) CreateImageUrl(id string) (*ImageUrls, error) {
	var digits strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil, errors.Wrapf(ErrInvalidNftId, "id %q", id)
	}
	numeric, err := strconv.ParseUint(digits.String(), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidNftId, "id %q: %v", id, err)
	}
	formatted := fmt.Sprintf("%04d", numeric)
	gateway := fmt.Sprintf("%s%s/%s.png", s.config.IpfsGateway, s.config.ImagesCid, formatted)

	return &ImageUrls{
		IpfsUrl:    fmt.Sprintf("ipfs://%s/%s.png", s.config.ImagesCid, formatted),
		GatewayUrl: gateway,
		NftImage:   gateway,
		IpfsHash:   s.config.ImagesCid,
	}, nil
}

// HashMintId folds the mint address into 1..999 with a 31-multiplier int32 string hash.
func HashMintId(mint string) string {
	var hash int32
	for _, c := range []byte(mint) {
		hash = 31*hash + int32(c)
	}
	abs := int64(math.Abs(float64(hash)))
	return strconv.FormatInt(abs%999+1, 10)
}

// ExtractOrGenerateId prefers the catalog's mint index, then its row id, then the mint hash.
func ExtractOrGenerateId(mint string, catalog *storage.CatalogEntry) string {
	if catalog != nil {
		if catalog.MintIndex != nil && *catalog.MintIndex != 0 {
			return strconv.FormatInt(*catalog.MintIndex, 10)
		}
		if catalog.Id != 0 {
			return strconv.FormatUint(catalog.Id, 10)
		}
	}
	return HashMintId(mint)
}

func (s *Synthesizer) DisplayName(id string) string {
	return fmt.Sprintf("%s #%s", s.config.CollectionName, id)
}

func (s *Synthesizer) BuildMetadata(id string, tier string, image string) *NFTMetadata {
	if tier == "" {
		tier = "Common"
	}
	return &NFTMetadata{
		Name:        s.DisplayName(id),
		Symbol:      s.config.Symbol,
		Description: s.config.Description,
		Image:       image,
		Attributes: []Attribute{
			{TraitType: "Tier", Value: tier},
		},
	}
}

func (s *Synthesizer) UpdateNFTMetadata(ctx context.Context, mint string) (*UpdateResult, error) {
	row, err := s.mirror.GetStakingRow(ctx, mint)
	if err != nil {
		return nil, err
	}
	if row.Status == storage.StatusPending {
		return nil, errors.Wrapf(ErrRowPending, "mint %s", mint)
	}

	entry, err := s.catalog.GetCatalogEntry(ctx, mint)
	if err != nil {
		s.logger.Sugar().Warnw("Failed to read catalog entry, deriving id from mirror",
			zap.String("mint", mint),
			zap.Error(err),
		)
		entry = nil
	}

	var nftId string
	switch {
	case entry != nil:
		nftId = ExtractOrGenerateId(mint, entry)
	case row.NftId != "":
		nftId = row.NftId
	default:
		nftId = HashMintId(mint)
	}

	urls, err := s.CreateImageUrl(nftId)
	if err != nil {
		return nil, err
	}
	meta := s.BuildMetadata(nftId, row.NftTier, urls.IpfsUrl)
	metaJson, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode metadata")
	}

	fields := &storage.MetadataFields{
		NftName:      meta.Name,
		Image:        urls.IpfsUrl,
		ImageUrl:     urls.IpfsUrl,
		NftImage:     urls.GatewayUrl,
		IpfsHash:     urls.IpfsHash,
		Metadata:     string(metaJson),
		LastVerified: s.now(),
	}
	affected, err := s.mirror.UpdateMetadataFields(ctx, mint, fields)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{
		Success:      true,
		Message:      "NFT metadata updated successfully",
		MintAddress:  mint,
		NftId:        nftId,
		ImageUrl:     urls.IpfsUrl,
		GatewayUrl:   urls.GatewayUrl,
		IpfsHash:     urls.IpfsHash,
		RowsAffected: affected,
	}

	if entry == nil {
		newEntry := &storage.CatalogEntry{
			MintAddress: mint,
			Wallet:      row.WalletAddress,
			Name:        meta.Name,
			ImageUrl:    urls.IpfsUrl,
			NftImage:    urls.GatewayUrl,
			IpfsHash:    urls.IpfsHash,
			Metadata:    string(metaJson),
			Status:      catalogStatusCompleted,
		}
		if idx, err := strconv.ParseInt(nftId, 10, 64); err == nil {
			newEntry.MintIndex = &idx
		}
		if err := s.catalog.InsertCatalogEntry(ctx, newEntry); err != nil {
			s.logger.Sugar().Errorw("Failed to create catalog entry", zap.String("mint", mint), zap.Error(err))
		} else {
			result.CatalogCreated = true
		}
	} else {
		if _, err := s.catalog.UpdateCatalogEntry(ctx, mint, fields); err != nil {
			s.logger.Sugar().Errorw("Failed to update catalog entry", zap.String("mint", mint), zap.Error(err))
		} else {
			result.CatalogUpdated = true
		}
	}
	return result, nil
}
