package action

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/mossline/storepilot/internal/docsgen"
	"github.com/mossline/storepilot/internal/shopify"
	"go.uber.org/zap"
)

// Commerce is the slice of the Shopify Admin API the standard actions use.
type Commerce interface {
	CreateProduct(ctx context.Context, p shopify.ProductInput) (*shopify.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListProducts(ctx context.Context) ([]shopify.Product, error)
}

// CommerceFactory builds a commerce client from a freshly resolved
// credential.
type CommerceFactory func(cred Credential) Commerce

// DocsGenerator produces legal document records for a business idea.
type DocsGenerator interface {
	Generate(ctx context.Context, idea string) ([]docsgen.Document, error)
}

// DocumentArchive persists generated documents for later retrieval.
// Archival is best-effort; failures never fail the action.
type DocumentArchive interface {
	SaveDocuments(ctx context.Context, callerID string, docs []docsgen.Document) error
}

// Deps bundles the external collaborators the standard actions rely on.
// Any field may be nil; actions that need a missing collaborator fail with
// an execution-failure outcome rather than panicking.
type Deps struct {
	Credentials CredentialSource
	Commerce    CommerceFactory
	Docs        DocsGenerator
	Archive     DocumentArchive
	Logger      *zap.Logger
}

// IntegrationShopify is the integration type key for commerce credentials.
const IntegrationShopify = "shopify"

// commerceFor resolves the caller's Shopify credential and builds a client.
// A nil Commerce with a non-nil Outcome means the lookup failed in a way
// the action should report and stop.
func (d Deps) commerceFor(ctx context.Context, caller Caller) (Commerce, *Outcome) {
	if d.Credentials == nil || d.Commerce == nil {
		o := Fail(KindExecutionFailure, "commerce integration is not configured on this server")
		return nil, &o
	}
	cred, err := d.Credentials.ActiveCredential(ctx, caller.ID, IntegrationShopify)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			o := Fail(KindMissingCredential,
				"No Shopify store is connected for this account. Connect one on the integrations page first.")
			return nil, &o
		}
		o := Fail(KindExternalService, fmt.Sprintf("credential lookup failed: %v", err))
		return nil, &o
	}
	return d.Commerce(*cred), nil
}

// outcomeForCommerceErr maps a commerce client error onto the failure
// taxonomy.
func outcomeForCommerceErr(err error) Outcome {
	var se *shopify.StatusError
	if errors.As(err, &se) {
		return Fail(KindExternalService,
			fmt.Sprintf("Shopify returned status %d: %s", se.StatusCode, se.Body))
	}
	return Fail(KindExternalService, err.Error())
}

// StoreSlug derives the deterministic storefront subdomain from a store
// name: lowercased, with spaces and underscores replaced by dashes.
func StoreSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	return slug
}

func storeID(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("store_%d", h.Sum32()%1000000)
}

var storeThemes = map[string]string{
	"fashion":     "Brooklyn",
	"electronics": "Narrative",
	"home_garden": "Craft",
	"beauty":      "Prestige",
	"sports":      "Turbo",
}

// RegisterBuiltins adds the standard business-automation actions to a
// registry.
func RegisterBuiltins(reg *Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	register := func(defs ...Definition) error {
		for _, d := range defs {
			if err := reg.Register(d); err != nil {
				return err
			}
		}
		return nil
	}

	return register(
		setupStoreAction(),
		configurePaymentAction(),
		setupInventoryAction(deps),
		generateLegalDocsAction(deps),
		createProductAction(deps),
		deleteProductAction(deps),
		deleteAllProductsAction(deps),
	)
}

func setupStoreAction() Definition {
	return Definition{
		Name:        "setup_store",
		Description: "Create a new storefront scaffold with a deterministic address derived from the store name",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"store_name": map[string]interface{}{"type": "string", "minLength": 1, "description": "Human-readable store name"},
				"industry":   map[string]interface{}{"type": "string", "description": "Industry vertical, e.g. fashion or electronics"},
			},
			"required": []interface{}{"store_name"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome {
			name, _ := input["store_name"].(string)
			industry, _ := input["industry"].(string)

			slug := StoreSlug(name)
			storeURL := fmt.Sprintf("https://%s.myshopify.com", slug)
			theme := "Dawn"
			if t, ok := storeThemes[strings.ToLower(industry)]; ok {
				theme = t
			}

			data := map[string]interface{}{
				"store_id":  storeID(name),
				"store_url": storeURL,
				"admin_url": storeURL + "/admin",
				"theme":     theme,
				"next_steps": []string{
					"Customize your store theme and branding",
					"Add product images and descriptions",
					"Set up payment processing",
					"Configure shipping rates and zones",
					"Launch your store and start marketing",
				},
			}
			return OK(fmt.Sprintf("Created store scaffold for %q at %s", name, storeURL), data)
		},
	}
}

func configurePaymentAction() Definition {
	return Definition{
		Name:        "configure_payment",
		Description: "Configure the payment methods accepted by the store",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"methods": map[string]interface{}{
					"type":     "array",
					"items":    map[string]interface{}{"type": "string"},
					"minItems": 1,
				},
			},
			"required": []interface{}{"methods"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome {
			raw, _ := input["methods"].([]interface{})
			methods := make([]string, 0, len(raw))
			for _, m := range raw {
				if s, ok := m.(string); ok {
					methods = append(methods, s)
				}
			}
			data := map[string]interface{}{"configured": true, "methods": methods}
			return OK(fmt.Sprintf("Configured %d payment method(s): %s",
				len(methods), strings.Join(methods, ", ")), data)
		},
	}
}

func setupInventoryAction(deps Deps) Definition {
	return Definition{
		Name:        "setup_inventory",
		Description: "Seed the connected store's catalog with an initial set of products",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"products": map[string]interface{}{
					"type":     "array",
					"minItems": 1,
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":        map[string]interface{}{"type": "string", "minLength": 1},
							"description": map[string]interface{}{"type": "string"},
							"price":       map[string]interface{}{"type": "string"},
							"inventory":   map[string]interface{}{"type": "integer", "minimum": 0},
						},
						"required": []interface{}{"name"},
					},
				},
			},
			"required": []interface{}{"products"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome {
			commerce, failed := deps.commerceFor(ctx, caller)
			if failed != nil {
				return *failed
			}

			items, _ := input["products"].([]interface{})
			var created []string
			var errored []string
			for _, raw := range items {
				item, _ := raw.(map[string]interface{})
				name, _ := item["name"].(string)
				desc, _ := item["description"].(string)
				price, _ := item["price"].(string)
				qty := 0
				if n, ok := item["inventory"].(float64); ok {
					qty = int(n)
				}

				p := shopify.ProductInput{
					Title:    name,
					BodyHTML: desc,
					Variants: []shopify.Variant{{Price: price, InventoryQuantity: qty}},
				}
				if _, err := commerce.CreateProduct(ctx, p); err != nil {
					deps.Logger.Warn("inventory item failed",
						zap.String("product", name), zap.Error(err))
					errored = append(errored, name)
					continue
				}
				created = append(created, name)
			}

			data := map[string]interface{}{
				"created_count": len(created),
				"failed_count":  len(errored),
				"created":       created,
				"failed":        errored,
			}
			msg := fmt.Sprintf("Seeded %d of %d product(s)", len(created), len(items))
			if len(errored) > 0 {
				return Outcome{Success: false, Data: data, Message: msg, ErrorKind: KindExternalService}
			}
			return OK(msg, data)
		},
	}
}

func generateLegalDocsAction(deps Deps) Definition {
	return Definition{
		Name:        "generate_legal_docs",
		Description: "Generate privacy policy and terms-of-use documents for a business idea",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"idea": map[string]interface{}{"type": "string", "minLength": 1, "description": "A one-sentence description of the business"},
			},
			"required": []interface{}{"idea"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome {
			if deps.Docs == nil {
				return Fail(KindExecutionFailure, "document generation is not configured on this server")
			}
			idea, _ := input["idea"].(string)

			docs, err := deps.Docs.Generate(ctx, idea)
			if err != nil {
				var perr *docsgen.ParseError
				if errors.As(err, &perr) {
					return Fail(KindParseFailure, perr.Error())
				}
				var se *docsgen.StatusError
				if errors.As(err, &se) {
					return Fail(KindExternalService,
						fmt.Sprintf("generator returned status %d: %s", se.StatusCode, se.Body))
				}
				return Fail(KindExternalService, err.Error())
			}

			if deps.Archive != nil {
				if err := deps.Archive.SaveDocuments(ctx, caller.ID, docs); err != nil {
					deps.Logger.Warn("document archive failed", zap.Error(err))
				}
			}

			titles := make([]string, len(docs))
			for i, d := range docs {
				titles[i] = d.Title
			}
			data := map[string]interface{}{"documents": docs, "count": len(docs)}
			return OK(fmt.Sprintf("Generated %d document(s): %s",
				len(docs), strings.Join(titles, ", ")), data)
		},
	}
}

func createProductAction(deps Deps) Definition {
	return Definition{
		Name:        "create_product",
		Description: "Create a single product in the connected store",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"title":       map[string]interface{}{"type": "string", "minLength": 1},
				"description": map[string]interface{}{"type": "string"},
				"price":       map[string]interface{}{"type": "string"},
				"inventory":   map[string]interface{}{"type": "integer", "minimum": 0},
			},
			"required": []interface{}{"title"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome {
			commerce, failed := deps.commerceFor(ctx, caller)
			if failed != nil {
				return *failed
			}

			title, _ := input["title"].(string)
			desc, _ := input["description"].(string)
			price, _ := input["price"].(string)
			qty := 0
			if n, ok := input["inventory"].(float64); ok {
				qty = int(n)
			}

			created, err := commerce.CreateProduct(ctx, shopify.ProductInput{
				Title:    title,
				BodyHTML: desc,
				Variants: []shopify.Variant{{Price: price, InventoryQuantity: qty}},
			})
			if err != nil {
				return outcomeForCommerceErr(err)
			}
			data := map[string]interface{}{"product_id": created.ID, "title": created.Title}
			return OK(fmt.Sprintf("Created product %q (id %d)", created.Title, created.ID), data)
		},
	}
}

func deleteProductAction(deps Deps) Definition {
	return Definition{
		Name:        "delete_product",
		Description: "Delete a single product from the connected store by id",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"product_id": map[string]interface{}{"type": "integer"},
			},
			"required": []interface{}{"product_id"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome {
			commerce, failed := deps.commerceFor(ctx, caller)
			if failed != nil {
				return *failed
			}

			id := int64(0)
			if n, ok := input["product_id"].(float64); ok {
				id = int64(n)
			}
			if err := commerce.DeleteProduct(ctx, id); err != nil {
				return outcomeForCommerceErr(err)
			}
			return OK(fmt.Sprintf("Deleted product %d", id),
				map[string]interface{}{"product_id": id})
		},
	}
}

func deleteAllProductsAction(deps Deps) Definition {
	return Definition{
		Name:        "delete_all_products",
		Description: "Delete every product in the connected store, reporting per-item results",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome {
			commerce, failed := deps.commerceFor(ctx, caller)
			if failed != nil {
				return *failed
			}

			products, err := commerce.ListProducts(ctx)
			if err != nil {
				return outcomeForCommerceErr(err)
			}

			// Each deletion stands alone: one item failing never stops
			// the sweep.
			var deleted, errored []int64
			for _, p := range products {
				if err := commerce.DeleteProduct(ctx, p.ID); err != nil {
					deps.Logger.Warn("product deletion failed",
						zap.Int64("id", p.ID), zap.Error(err))
					errored = append(errored, p.ID)
					continue
				}
				deleted = append(deleted, p.ID)
			}

			data := map[string]interface{}{
				"deleted_count": len(deleted),
				"failed_count":  len(errored),
				"deleted":       deleted,
				"failed":        errored,
			}
			msg := fmt.Sprintf("Deleted %d of %d product(s)", len(deleted), len(products))
			if len(errored) > 0 {
				return Outcome{Success: false, Data: data, Message: msg, ErrorKind: KindExternalService}
			}
			return OK(msg, data)
		},
	}
}
