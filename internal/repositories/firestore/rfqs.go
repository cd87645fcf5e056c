package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/matcha-bridge/api/internal/domain"
	pfirestore "github.com/matcha-bridge/api/internal/platform/firestore"
	"github.com/matcha-bridge/api/internal/repositories"
)

const (
	rfqsCollection = "rfqs"
	skusCollection = "skus"
)

type rfqLineItemDocument struct {
	ID        string  `firestore:"id"`
	ProductID string  `firestore:"productId"`
	SKUID     string  `firestore:"skuId"`
	Quantity  float64 `firestore:"quantity"`
	Unit      string  `firestore:"unit"`
}

type rfqDocument struct {
	BuyerID            string                `firestore:"buyerId"`
	DestinationCountry string                `firestore:"destinationCountry"`
	LineItems          []rfqLineItemDocument `firestore:"lineItems"`
	CreatedAt          time.Time             `firestore:"createdAt"`
	UpdatedAt          time.Time             `firestore:"updatedAt"`
}

type skuDocument struct {
	ProductID      string  `firestore:"productId"`
	NetWeightGrams float64 `firestore:"netWeightGrams"`
}

var rfqCodec = pfirestore.Codec[domain.RFQ, rfqDocument]{
	Encode: func(rfq domain.RFQ) rfqDocument {
		items := make([]rfqLineItemDocument, 0, len(rfq.LineItems))
		for _, item := range rfq.LineItems {
			items = append(items, rfqLineItemDocument{
				ID:        item.ID,
				ProductID: item.ProductID,
				SKUID:     item.SKUID,
				Quantity:  item.Quantity,
				Unit:      item.Unit,
			})
		}
		return rfqDocument{
			BuyerID:            rfq.BuyerID,
			DestinationCountry: rfq.DestinationCountry,
			LineItems:          items,
			CreatedAt:          rfq.CreatedAt.UTC(),
			UpdatedAt:          rfq.UpdatedAt.UTC(),
		}
	},
	Decode: func(id string, doc rfqDocument) domain.RFQ {
		items := make([]domain.RFQLineItem, 0, len(doc.LineItems))
		for _, item := range doc.LineItems {
			items = append(items, domain.RFQLineItem{
				ID:        item.ID,
				ProductID: item.ProductID,
				SKUID:     item.SKUID,
				Quantity:  item.Quantity,
				Unit:      item.Unit,
			})
		}
		return domain.RFQ{
			ID:                 id,
			BuyerID:            doc.BuyerID,
			DestinationCountry: doc.DestinationCountry,
			LineItems:          items,
			CreatedAt:          doc.CreatedAt.UTC(),
			UpdatedAt:          doc.UpdatedAt.UTC(),
		}
	},
}

var skuCodec = pfirestore.Codec[skuDocument, skuDocument]{
	Encode: func(doc skuDocument) skuDocument { return doc },
	Decode: func(_ string, doc skuDocument) skuDocument { return doc },
}

// RFQRepository reads RFQ documents and resolves SKU weights from the skus collection.
type RFQRepository struct {
	provider *pfirestore.Provider
	rfqs     *pfirestore.Collection[domain.RFQ, rfqDocument]
	skus     *pfirestore.Collection[skuDocument, skuDocument]
}

var _ repositories.RFQRepository = (*RFQRepository)(nil)

// NewRFQRepository constructs a Firestore-backed RFQ reader.
func NewRFQRepository(provider *pfirestore.Provider) (*RFQRepository, error) {
	if provider == nil {
		return nil, errors.New("rfq repository: firestore provider is required")
	}
	return &RFQRepository{
		provider: provider,
		rfqs:     pfirestore.NewCollection(provider, rfqsCollection, rfqCodec),
		skus:     pfirestore.NewCollection(provider, skusCollection, skuCodec),
	}, nil
}

func (r *RFQRepository) FindByID(ctx context.Context, rfqID string) (domain.RFQ, error) {
	rfq, err := r.rfqs.Get(ctx, strings.TrimSpace(rfqID))
	if err != nil {
		return domain.RFQ{}, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(rfq.LineItems))
	positions := make([]int, 0, len(rfq.LineItems))
	for i, item := range rfq.LineItems {
		if strings.TrimSpace(item.SKUID) == "" {
			continue
		}
		ref, err := r.skus.Doc(ctx, item.SKUID)
		if err != nil {
			return domain.RFQ{}, err
		}
		refs = append(refs, ref)
		positions = append(positions, i)
	}
	if len(refs) == 0 {
		return rfq, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.RFQ{}, err
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return domain.RFQ{}, pfirestore.WrapError("skus.getAll", err)
	}
	for i, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		sku, err := r.skus.DecodeSnapshot(snap)
		if err != nil {
			return domain.RFQ{}, err
		}
		item := &rfq.LineItems[positions[i]]
		if sku.ProductID != "" && sku.ProductID != item.ProductID {
			continue
		}
		item.SKU = &domain.SKUWeight{SKUID: snap.Ref.ID, NetWeightGrams: sku.NetWeightGrams}
	}
	return rfq, nil
}

// Insert writes the RFQ document and upserts the SKU weights it references.
func (r *RFQRepository) Insert(ctx context.Context, rfq domain.RFQ) error {
	for _, item := range rfq.LineItems {
		if item.SKU == nil {
			continue
		}
		if err := r.skus.Set(ctx, item.SKU.SKUID, skuDocument{ProductID: item.ProductID, NetWeightGrams: item.SKU.NetWeightGrams}); err != nil {
			return err
		}
	}
	return r.rfqs.Create(ctx, rfq.ID, rfq)
}
