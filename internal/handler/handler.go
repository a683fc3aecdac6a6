// Package handler exposes the storefront services over HTTP. Handlers decode
// requests, call a service and encode the result; domain rules stay in the
// domain packages.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Accounts is the account service used by the handlers.
type Accounts interface {
	Register(ctx context.Context, in user.RegisterInput) (*user.Session, error)
	Login(ctx context.Context, email, password string) (*user.Session, error)
	Authenticate(token string) (*user.Claims, error)
	Profile(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, in user.ProfileInput) (*user.User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error
	ListUsers(ctx context.Context, f user.Filter) ([]user.User, error)
	UpdateAccess(ctx context.Context, actorID, id uuid.UUID, in user.AccessInput) (*user.User, error)
}

// Catalog is the product and category service.
type Catalog interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, error)
	GetBySlug(ctx context.Context, slug string) (*product.Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
	Create(ctx context.Context, p *product.Product) (*product.Product, error)
	Update(ctx context.Context, p *product.Product, stock *int) (*product.Product, error)
	Categories(ctx context.Context) ([]product.Category, error)
	Category(ctx context.Context, slug string, includeInactive bool) (*product.Category, error)
	CreateCategory(ctx context.Context, c *product.Category) (*product.Category, error)
	UpdateCategory(ctx context.Context, c *product.Category) (*product.Category, error)
	DeactivateCategory(ctx context.Context, slug string) error
}

// Reviews is the review service.
type Reviews interface {
	List(ctx context.Context, productID uuid.UUID) ([]product.Review, error)
	Create(ctx context.Context, userID, productID uuid.UUID, in product.ReviewInput) (*product.Review, error)
	Update(ctx context.Context, userID, reviewID uuid.UUID, in product.ReviewInput) (*product.Review, error)
	SetApproved(ctx context.Context, reviewID uuid.UUID, approved bool) (product.Rating, error)
	Delete(ctx context.Context, userID, reviewID uuid.UUID, isAdmin bool) error
	MarkHelpful(ctx context.Context, reviewID uuid.UUID) error
}

// Wishlists is the wishlist service.
type Wishlists interface {
	List(ctx context.Context, userID uuid.UUID) ([]product.WishlistEntry, error)
	Add(ctx context.Context, userID, productID uuid.UUID) error
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	Toggle(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

// Carts is the cart service.
type Carts interface {
	Get(ctx context.Context, userID uuid.UUID) (*cart.Summary, error)
	Add(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Summary, error)
	SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Summary, error)
	Remove(ctx context.Context, userID, productID uuid.UUID) (*cart.Summary, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Coupons is the coupon service.
type Coupons interface {
	Create(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error)
	List(ctx context.Context) ([]coupon.Coupon, error)
	Deactivate(ctx context.Context, code string) error
	Preview(ctx context.Context, code string, amount decimal.Decimal) (*coupon.Preview, error)
}

// Orders is the order service.
type Orders interface {
	Checkout(ctx context.Context, userID uuid.UUID, req order.CheckoutRequest) (*order.Order, error)
	Get(ctx context.Context, userID, id uuid.UUID, isAdmin bool) (*order.Order, error)
	List(ctx context.Context, userID uuid.UUID) ([]order.Order, error)
	ListAll(ctx context.Context, f order.Filter) ([]order.Order, error)
	History(ctx context.Context, userID, id uuid.UUID, isAdmin bool) ([]order.StatusChange, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) (*order.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to order.Status, note string, changedBy uuid.UUID) (*order.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string) (*order.Order, error)
}

// Services bundles the handler dependencies.
type Services struct {
	Accounts  Accounts
	Catalog   Catalog
	Reviews   Reviews
	Wishlists Wishlists
	Carts     Carts
	Coupons   Coupons
	Orders    Orders
}

// Handler serves the storefront API.
type Handler struct {
	Services
}

// New creates a Handler.
func New(s Services) *Handler {
	return &Handler{Services: s}
}

// Router builds the API routes. mws run inside the router, after a route
// has been matched.
func (h *Handler) Router(mws ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mws...)
	r.Use(h.authenticate)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRoute)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethod)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/profile", h.profile)
				r.Put("/profile", h.updateProfile)
				r.Post("/password", h.changePassword)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.listCategories)
			r.With(requireAdmin).Post("/", h.createCategory)
			r.Route("/{category}", func(r chi.Router) {
				r.Get("/", h.getCategory)
				r.With(requireAdmin).Put("/", h.updateCategory)
				r.With(requireAdmin).Delete("/", h.deleteCategory)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.With(requireAdmin).Post("/", h.createProduct)
			r.Route("/{product}", func(r chi.Router) {
				r.Get("/", h.getProduct)
				r.With(requireAdmin).Put("/", h.updateProduct)
				r.Get("/reviews", h.listReviews)
				r.With(requireUser).Post("/reviews", h.createReview)
				r.With(requireUser).Post("/wishlist/toggle", h.toggleWishlist)
			})
		})

		r.Route("/reviews/{review}", func(r chi.Router) {
			r.Use(requireUser)
			r.Put("/", h.updateReview)
			r.Delete("/", h.deleteReview)
			r.Post("/helpful", h.markHelpful)
			r.With(requireAdmin).Patch("/approval", h.setApproval)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", h.listWishlist)
			r.Post("/", h.addToWishlist)
			r.Delete("/{product}", h.removeFromWishlist)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{product}", h.setCartItem)
			r.Delete("/items/{product}", h.removeCartItem)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/preview", h.previewCoupon)
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", h.listCoupons)
				r.Post("/", h.createCoupon)
				r.Post("/{code}/deactivate", h.deactivateCoupon)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/", h.checkout)
			r.Get("/", h.listOrders)
			r.Route("/{order}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Get("/history", h.orderHistory)
				r.Post("/cancel", h.cancelOrder)
				r.With(requireAdmin).Patch("/status", h.updateOrderStatus)
				r.With(requireAdmin).Post("/payment", h.markOrderPaid)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/orders", h.listAllOrders)
			r.Get("/users", h.listUsers)
			r.Patch("/users/{user}", h.updateUserAccess)
		})
	})
	return r
}
