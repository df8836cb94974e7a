package resource

import (
	"net/http"

	"github.com/unkn0wn-root/tagcache/transport"
)

// DefaultRoutes is the console's REST catalog. Paths are relative to the
// API base URL. Configuration can override or extend any of them.
func DefaultRoutes() transport.Routes {
	get := func(path string) transport.Route { return transport.Route{Method: http.MethodGet, Path: path} }
	post := func(path string) transport.Route { return transport.Route{Method: http.MethodPost, Path: path} }
	put := func(path string) transport.Route { return transport.Route{Method: http.MethodPut, Path: path} }

	return transport.Routes{
		Providers: {
			"list":   get("admin/vendor/list"),
			OpCreate: post("admin/provider-register"),
			OpUpdate: put("admin/provider-update/{id}"),
			OpDelete: post("delete/{id}"),
			OpStatus: post("change/status/{id}"),
		},
		Bids: {
			"list":    get("admin/bids"),
			OpCreate:  post("admin/bids"),
			OpUpdate:  post("admin/bids/update/{id}"),
			OpDelete:  post("admin/bids/delete/{id}"),
			OpApprove: post("bid-entri-aaproved/{id}"),
			OpReject:  post("bid-entri-reject/{id}"),
		},
		Orders: {
			// role=user|vendor is sent as a query parameter
			"list": get("admin/all-bookings"),
		},
		Ads: {
			"list":   get("admin/ads"),
			OpCreate: post("admin/ads"),
			OpDelete: post("admin/ads/delete/{id}"),
		},
		FAQs: {
			"list":   get("admin/faq"),
			OpCreate: post("admin/faq"),
			OpUpdate: post("admin/faq/update/{id}"),
			OpDelete: post("admin/faq/delete/{id}"),
		},
		Customers: {
			"list":    get("admin/users"),
			OpStatus:  post("change/status/{id}"),
			OpApprove: post("admin/users/approve/{id}"),
			OpReject:  post("admin/users/disapprove/{id}"),
			OpDelete:  post("delete/{id}"),
		},
		CMS: {
			"list":   get("admin/cms"),
			"get":    get("admin/cms/{slug}"),
			OpUpdate: post("admin/cms/update/{id}"),
		},
		Transactions: {
			"list": get("admin/transactions"),
		},
		Notifications: {
			"list":   get("admin/notifications"),
			OpCreate: post("admin/notifications"),
			OpUpdate: post("admin/notifications/update/{id}"),
			OpDelete: post("admin/notifications/delete/{id}"),
		},
		Discounts: {
			"list":   get("admin/discounts"),
			OpCreate: post("admin/discounts"),
			OpUpdate: post("admin/discounts/update/{id}"),
			OpDelete: post("admin/discounts/delete/{id}"),
		},
	}
}
