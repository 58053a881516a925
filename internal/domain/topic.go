package domain

import (
	"fmt"
	"strings"
)

// Topic is a named interest category a connection subscribes to.
type Topic string

const (
	TopicAllActive Topic = "all-active"

	vehicleTopicPrefix = "vehicle:"
	routeTopicPrefix   = "route:"
)

func VehicleTopic(vehicleID string) Topic { return Topic(vehicleTopicPrefix + vehicleID) }

func RouteTopic(routeID string) Topic { return Topic(routeTopicPrefix + routeID) }

// ParseTopic validates a topic string received from a client.
func ParseTopic(raw string) (Topic, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == string(TopicAllActive):
		return TopicAllActive, nil
	case strings.HasPrefix(raw, vehicleTopicPrefix):
		if strings.TrimSpace(strings.TrimPrefix(raw, vehicleTopicPrefix)) == "" {
			return "", NewValidationError("topic", "vehicle topic requires an id")
		}
		return Topic(raw), nil
	case strings.HasPrefix(raw, routeTopicPrefix):
		if strings.TrimSpace(strings.TrimPrefix(raw, routeTopicPrefix)) == "" {
			return "", NewValidationError("topic", "route topic requires an id")
		}
		return Topic(raw), nil
	default:
		return "", NewValidationError("topic", fmt.Sprintf("unknown topic %q", raw))
	}
}
