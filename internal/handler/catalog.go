package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Catalog.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, categories, encodeCategory)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.Category(r.Context(), chi.URLParam(r, "category"), isAdmin(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCategory(e, c) })
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	c := product.Category{Active: true}
	if err := decodeCategory(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.Catalog.CreateCategory(r.Context(), &c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCategory(e, created) })
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.Category(r.Context(), chi.URLParam(r, "category"), true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := decodeCategory(w, r, c); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Catalog.UpdateCategory(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCategory(e, updated) })
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeactivateCategory(r.Context(), chi.URLParam(r, "category")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeCategory overwrites the fields of c present in the request body.
func decodeCategory(w http.ResponseWriter, r *http.Request, c *product.Category) error {
	return decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			c.Name, err = readString(d)
		case "slug":
			c.Slug, err = readString(d)
		case "description":
			c.Description, err = readString(d)
		case "image":
			c.Image, err = readString(d)
		case "parent_id":
			c.ParentID, err = readOptUUID(d)
		case "active":
			c.Active, err = d.Bool()
		case "sort_order":
			c.SortOrder, err = d.Int()
		default:
			return d.Skip()
		}
		return field(key, err)
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	products, err := h.Catalog.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, products, encodeProduct)
}

func productFilter(r *http.Request) (product.Filter, error) {
	q := r.URL.Query()
	f := product.Filter{
		CategorySlug: q.Get("category"),
		Search:       q.Get("search"),
		FeaturedOnly: q.Get("featured") == "true",
		InStockOnly:  q.Get("in_stock") == "true",
		Brand:        strings.TrimSpace(q.Get("brand")),
		Sort:         product.SortOrder(q.Get("sort")),
	}
	switch f.Sort {
	case "", product.SortNewest, product.SortPriceAsc, product.SortPriceDesc, product.SortRating, product.SortName:
	default:
		return f, badRequest("unknown sort %q", f.Sort)
	}

	for name, dst := range map[string]**decimal.Decimal{
		"min_price":  &f.MinPrice,
		"max_price":  &f.MaxPrice,
		"min_rating": &f.MinRating,
	} {
		if v := q.Get(name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return f, badRequest("invalid %s", name)
			}
			*dst = &d
		}
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, badRequest("invalid %s", name)
			}
			*dst = n
		}
	}
	return f, nil
}

// lookupProduct resolves the {product} path parameter, a uuid or a slug.
// Inactive products are only visible to admins.
func (h *Handler) lookupProduct(r *http.Request) (*product.Product, error) {
	ref := chi.URLParam(r, "product")
	id, err := uuid.Parse(ref)
	if err != nil {
		return h.Catalog.GetBySlug(r.Context(), ref)
	}
	p, err := h.Catalog.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !p.Active && !isAdmin(r) {
		return nil, product.ErrNotFound
	}
	return p, nil
}

// productParam parses a {product} parameter that must be a uuid.
func productParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "product"))
	if err != nil {
		return uuid.Nil, badRequest("invalid product id")
	}
	return id, nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookupProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	p := product.Product{Active: true, LowStockThreshold: 10}
	if _, err := decodeProduct(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.Catalog.Create(r.Context(), &p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, created) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookupProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stockSet, err := decodeProduct(w, r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Stock read above may be stale by now; only an explicit value replaces it.
	var stock *int
	if stockSet {
		stock = &p.StockQuantity
	}
	updated, err := h.Catalog.Update(r.Context(), p, stock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, updated) })
}

// decodeProduct overwrites the fields of p present in the request body and
// reports whether stock_quantity was among them.
func decodeProduct(w http.ResponseWriter, r *http.Request, p *product.Product) (stockSet bool, err error) {
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = readString(d)
		case "slug":
			p.Slug, err = readString(d)
		case "sku":
			p.SKU, err = readString(d)
		case "description":
			p.Description, err = readString(d)
		case "short_description":
			p.ShortDescription, err = readString(d)
		case "price":
			p.Price, err = readDecimal(d)
		case "original_price":
			p.OriginalPrice, err = readOptDecimal(d)
		case "stock_quantity":
			p.StockQuantity, err = d.Int()
			stockSet = true
		case "low_stock_threshold":
			p.LowStockThreshold, err = d.Int()
		case "category_id":
			p.CategoryID, err = readUUID(d)
		case "brand":
			p.Brand, err = readString(d)
		case "images":
			p.Images, err = readStrings(d)
		case "tags":
			p.Tags, err = readStrings(d)
		case "active":
			p.Active, err = d.Bool()
		case "featured":
			p.Featured, err = d.Bool()
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	return stockSet, err
}
