package dto

import "transit-tracking-service/internal/domain"

type Stop struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Order     int     `json:"order,omitempty"`
}

func NewStop(s domain.RouteStop) Stop {
	return Stop{Name: s.Name, Latitude: s.Latitude, Longitude: s.Longitude, Order: s.Order}
}

func (s Stop) ToDomain() domain.RouteStop {
	return domain.RouteStop{Name: s.Name, Latitude: s.Latitude, Longitude: s.Longitude, Order: s.Order}
}

type Route struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Number           string  `json:"number"`
	Color            string  `json:"color"`
	StartPoint       Stop    `json:"startPoint"`
	EndPoint         Stop    `json:"endPoint"`
	Stops            []Stop  `json:"stops"`
	DistanceKm       float64 `json:"distanceKm"`
	EstimatedMinutes int     `json:"estimatedMinutes"`
	Active           bool    `json:"active"`
}

func NewRoute(r domain.RouteSummary) Route {
	stops := make([]Stop, 0, len(r.Stops))
	for _, s := range r.Stops {
		stops = append(stops, NewStop(s))
	}
	return Route{
		ID:               r.ID,
		Name:             r.Name,
		Number:           r.Number,
		Color:            r.Color,
		StartPoint:       NewStop(r.Start),
		EndPoint:         NewStop(r.End),
		Stops:            stops,
		DistanceKm:       r.DistanceKm,
		EstimatedMinutes: r.EstimatedMinutes,
		Active:           r.Active,
	}
}

type RouteResponse struct {
	Route Route `json:"route"`
}

type ListRoutesResponse struct {
	Count  int     `json:"count"`
	Routes []Route `json:"routes"`
}

type RouteRequest struct {
	Name             string  `json:"name" validate:"required,max=120"`
	Number           string  `json:"number" validate:"max=16"`
	Color            string  `json:"color" validate:"omitempty,hexcolor"`
	StartPoint       Stop    `json:"startPoint"`
	EndPoint         Stop    `json:"endPoint"`
	Stops            []Stop  `json:"stops" validate:"dive"`
	DistanceKm       float64 `json:"distanceKm" validate:"gte=0"`
	EstimatedMinutes int     `json:"estimatedMinutes" validate:"gte=0"`
	Active           *bool   `json:"active"`
}

func (r RouteRequest) ToDomain(id string) domain.RouteSummary {
	stops := make([]domain.RouteStop, 0, len(r.Stops))
	for _, s := range r.Stops {
		stops = append(stops, s.ToDomain())
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return domain.RouteSummary{
		ID:               id,
		Name:             r.Name,
		Number:           r.Number,
		Color:            r.Color,
		Start:            r.StartPoint.ToDomain(),
		End:              r.EndPoint.ToDomain(),
		Stops:            stops,
		DistanceKm:       r.DistanceKm,
		EstimatedMinutes: r.EstimatedMinutes,
		Active:           active,
	}
}

type RouteStats struct {
	RouteID        string `json:"routeId"`
	Name           string `json:"name"`
	Number         string `json:"number"`
	TotalVehicles  int    `json:"totalVehicles"`
	ActiveVehicles int    `json:"activeVehicles"`
}

type RouteStatsResponse struct {
	Routes []RouteStats `json:"routes"`
}

type StatsResponse struct {
	TotalVehicles    int `json:"totalVehicles"`
	ActiveVehicles   int `json:"activeVehicles"`
	OpenIncidents    int `json:"openIncidents"`
	TotalRoutes      int `json:"totalRoutes"`
	ActiveRoutes     int `json:"activeRoutes"`
	ConnectedClients int `json:"connectedClients"`
	Subscriptions    int `json:"subscriptions"`
}
