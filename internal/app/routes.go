package app

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrUnknownRoute is returned for paths outside the route table.
var ErrUnknownRoute = errors.New("unknown route")

// RouteName identifies a screen.
type RouteName int

const (
	RouteRoot RouteName = iota
	RouteLogin
	RouteList
	RouteDetail
)

func (n RouteName) String() string {
	switch n {
	case RouteLogin:
		return "login"
	case RouteList:
		return "list"
	case RouteDetail:
		return "detail"
	default:
		return "root"
	}
}

// Route is a resolved location. ID is set for RouteDetail only.
type Route struct {
	Name RouteName
	ID   string
}

// Path renders the route back into its canonical path.
func (r Route) Path() string {
	switch r.Name {
	case RouteLogin:
		return "/login"
	case RouteList:
		return "/activities"
	case RouteDetail:
		return "/activities/" + url.PathEscape(r.ID)
	default:
		return "/"
	}
}

// Resolve maps a path onto the route table: /, /login, /activities and /activities/{id}.
func Resolve(raw string) (Route, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch {
	case p == "/":
		return Route{Name: RouteRoot}, nil
	case p == "/login":
		return Route{Name: RouteLogin}, nil
	case p == "/activities":
		return Route{Name: RouteList}, nil
	case len(segments) == 2 && segments[0] == "activities":
		id, err := url.PathUnescape(segments[1])
		if err != nil {
			return Route{}, fmt.Errorf("%w: %s", ErrUnknownRoute, raw)
		}
		return Route{Name: RouteDetail, ID: id}, nil
	default:
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownRoute, raw)
	}
}
