package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mossline/storepilot/internal/docsgen"
	"github.com/mossline/storepilot/internal/shopify"
	"go.uber.org/zap"
)

type fakeCredentials struct {
	cred    *Credential
	err     error
	lookups int
}

func (f *fakeCredentials) ActiveCredential(ctx context.Context, callerID, integration string) (*Credential, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

type fakeCommerce struct {
	products   []shopify.Product
	created    []shopify.ProductInput
	deleted    []int64
	failDelete map[int64]error
	failCreate error
}

func (f *fakeCommerce) CreateProduct(ctx context.Context, p shopify.ProductInput) (*shopify.Product, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.created = append(f.created, p)
	return &shopify.Product{ID: int64(len(f.created)), Title: p.Title}, nil
}

func (f *fakeCommerce) DeleteProduct(ctx context.Context, id int64) error {
	if err := f.failDelete[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCommerce) ListProducts(ctx context.Context) ([]shopify.Product, error) {
	return f.products, nil
}

type fakeDocs struct {
	docs []docsgen.Document
	err  error
}

func (f *fakeDocs) Generate(ctx context.Context, idea string) ([]docsgen.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type fakeArchive struct {
	saved []docsgen.Document
}

func (f *fakeArchive) SaveDocuments(ctx context.Context, callerID string, docs []docsgen.Document) error {
	f.saved = append(f.saved, docs...)
	return nil
}

func builtinRegistry(t *testing.T, deps Deps) *Registry {
	t.Helper()
	reg := NewRegistry(zap.NewNop())
	if err := RegisterBuiltins(reg, deps); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return reg
}

func commerceDeps(commerce *fakeCommerce) Deps {
	return Deps{
		Credentials: &fakeCredentials{cred: &Credential{ExternalID: "shop.myshopify.com", AccessToken: "tok"}},
		Commerce:    func(cred Credential) Commerce { return commerce },
	}
}

func TestStoreSlug(t *testing.T) {
	cases := map[string]string{
		"My Cool Store":  "my-cool-store",
		"snake_case_one": "snake-case-one",
		"Plain":          "plain",
		"  Trimmed  ":    "trimmed",
	}
	for in, want := range cases {
		if got := StoreSlug(in); got != want {
			t.Errorf("StoreSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetupStoreDeterministicURL(t *testing.T) {
	reg := builtinRegistry(t, Deps{})

	out := reg.Invoke(context.Background(), "setup_store",
		`{"store_name": "My Cool Store", "industry": "fashion"}`, Caller{ID: "u1"})
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}

	data := out.Data.(map[string]interface{})
	if data["store_url"] != "https://my-cool-store.myshopify.com" {
		t.Errorf("store_url = %v", data["store_url"])
	}
	if data["theme"] != "Brooklyn" {
		t.Errorf("theme = %v, want industry theme", data["theme"])
	}

	// Same name always yields the same id and url.
	again := reg.Invoke(context.Background(), "setup_store",
		`{"store_name": "My Cool Store"}`, Caller{ID: "u1"})
	if again.Data.(map[string]interface{})["store_id"] != data["store_id"] {
		t.Error("store id is not deterministic")
	}
}

func TestConfigurePayment(t *testing.T) {
	reg := builtinRegistry(t, Deps{})

	out := reg.Invoke(context.Background(), "configure_payment",
		`{"methods": ["card", "paypal"]}`, Caller{ID: "u1"})
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(out.Message, "2 payment method(s)") {
		t.Errorf("message = %q", out.Message)
	}

	empty := reg.Invoke(context.Background(), "configure_payment",
		`{"methods": []}`, Caller{ID: "u1"})
	if empty.Success || empty.ErrorKind != KindInvalidInput {
		t.Errorf("empty methods accepted: %+v", empty)
	}
}

func TestCommerceActionsRequireCredential(t *testing.T) {
	creds := &fakeCredentials{err: ErrNoCredential}
	commerce := &fakeCommerce{}
	reg := builtinRegistry(t, Deps{
		Credentials: creds,
		Commerce:    func(cred Credential) Commerce { return commerce },
	})

	out := reg.Invoke(context.Background(), "create_product",
		`{"title": "Widget"}`, Caller{ID: "u1"})
	if out.Success || out.ErrorKind != KindMissingCredential {
		t.Fatalf("outcome = %+v", out)
	}
	if len(commerce.created) != 0 {
		t.Error("network call made without a credential")
	}
}

func TestCredentialResolvedFreshPerInvocation(t *testing.T) {
	creds := &fakeCredentials{cred: &Credential{ExternalID: "s.myshopify.com", AccessToken: "tok"}}
	reg := builtinRegistry(t, Deps{
		Credentials: creds,
		Commerce:    func(cred Credential) Commerce { return &fakeCommerce{} },
	})

	for i := 0; i < 3; i++ {
		reg.Invoke(context.Background(), "create_product", `{"title": "Widget"}`, Caller{ID: "u1"})
	}
	if creds.lookups != 3 {
		t.Errorf("lookups = %d, want one per invocation", creds.lookups)
	}
}

func TestSetupInventorySeedsCatalog(t *testing.T) {
	commerce := &fakeCommerce{}
	reg := builtinRegistry(t, commerceDeps(commerce))

	out := reg.Invoke(context.Background(), "setup_inventory",
		`{"products": [{"name": "A", "price": "9.99", "inventory": 5}, {"name": "B"}]}`,
		Caller{ID: "u1"})
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if len(commerce.created) != 2 {
		t.Fatalf("created %d products", len(commerce.created))
	}
	if commerce.created[0].Variants[0].Price != "9.99" {
		t.Errorf("variant = %+v", commerce.created[0].Variants[0])
	}
}

func TestCreateProductMapsStatusError(t *testing.T) {
	commerce := &fakeCommerce{failCreate: &shopify.StatusError{StatusCode: 422, Body: "title taken"}}
	reg := builtinRegistry(t, commerceDeps(commerce))

	out := reg.Invoke(context.Background(), "create_product",
		`{"title": "Widget"}`, Caller{ID: "u1"})
	if out.Success || out.ErrorKind != KindExternalService {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(out.Message, "422") {
		t.Errorf("message = %q", out.Message)
	}
}

func TestDeleteAllProductsPartialFailure(t *testing.T) {
	commerce := &fakeCommerce{
		products: []shopify.Product{{ID: 1}, {ID: 2}, {ID: 3}},
		failDelete: map[int64]error{
			2: errors.New("locked"),
		},
	}
	reg := builtinRegistry(t, commerceDeps(commerce))

	out := reg.Invoke(context.Background(), "delete_all_products", `{}`, Caller{ID: "u1"})
	if out.Success {
		t.Fatal("partial failure must not report success")
	}

	data := out.Data.(map[string]interface{})
	if data["deleted_count"] != 2 {
		t.Errorf("deleted_count = %v", data["deleted_count"])
	}
	if data["failed_count"] != 1 {
		t.Errorf("failed_count = %v", data["failed_count"])
	}
	if fmt.Sprint(data["failed"]) != "[2]" {
		t.Errorf("failed = %v", data["failed"])
	}
}

func TestGenerateLegalDocsArchivesResults(t *testing.T) {
	docs := []docsgen.Document{
		{DocType: "privacy_policy", Title: "Privacy Policy", Content: "..."},
		{DocType: "terms_of_use", Title: "Terms of Use", Content: "..."},
	}
	archive := &fakeArchive{}
	reg := builtinRegistry(t, Deps{
		Docs:    &fakeDocs{docs: docs},
		Archive: archive,
	})

	out := reg.Invoke(context.Background(), "generate_legal_docs",
		`{"idea": "artisan coffee subscriptions"}`, Caller{ID: "u1"})
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if len(archive.saved) != 2 {
		t.Errorf("archived %d documents", len(archive.saved))
	}
}

func TestGenerateLegalDocsParseFailure(t *testing.T) {
	reg := builtinRegistry(t, Deps{
		Docs: &fakeDocs{err: &docsgen.ParseError{Reason: "no JSON array in response"}},
	})

	out := reg.Invoke(context.Background(), "generate_legal_docs",
		`{"idea": "a bakery"}`, Caller{ID: "u1"})
	if out.Success || out.ErrorKind != KindParseFailure {
		t.Fatalf("outcome = %+v", out)
	}
}
