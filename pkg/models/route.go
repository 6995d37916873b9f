package models

// RouteKind discriminates which provider method a query maps to.
type RouteKind string

// Provider routing variants.
const (
	RouteTextSearch   RouteKind = "textSearch"
	RouteNearbySearch RouteKind = "nearbySearch"
	RouteLandmarkPlan RouteKind = "landmarkPlan"
)
