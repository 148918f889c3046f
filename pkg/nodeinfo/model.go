/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"fmt"
	"regexp"
)

const activityPubProtocol = "activitypub"

// Version specifies the version of the NodeInfo data.
type Version = string

const (
	// V2_0 is NodeInfo version 2.0 (http://nodeinfo.diaspora.software/ns/schema/2.0#).
	V2_0 Version = "2.0"

	// V2_1 is NodeInfo version 2.1 (http://nodeinfo.diaspora.software/ns/schema/2.1#).
	V2_1 Version = "2.1"
)

// ContentType returns the media type of a NodeInfo document of the given version.
func ContentType(version Version) string {
	return fmt.Sprintf(`application/json; profile="http://nodeinfo.diaspora.software/ns/schema/%s#"`, version)
}

// NodeInfo contains NodeInfo data.
type NodeInfo struct {
	Version           string                 `json:"version"`
	Software          Software               `json:"software"`
	Protocols         []string               `json:"protocols"`
	Services          Services               `json:"services"`
	OpenRegistrations bool                   `json:"openRegistrations"`
	Usage             Usage                  `json:"usage"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// Software contains information about the server software, including version.
type Software struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository,omitempty"`
}

// Services contains the third-party services that this server connects to.
type Services struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

// Usage contains usage statistics.
type Usage struct {
	Users         Users `json:"users"`
	LocalPosts    int   `json:"localPosts"`
	LocalComments int   `json:"localComments"`
}

// Users contains the number of users on this server.
type Users struct {
	Total          int `json:"total"`
	ActiveMonth    int `json:"activeMonth,omitempty"`
	ActiveHalfyear int `json:"activeHalfyear,omitempty"`
}

var softwareNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Validate validates the NodeInfo document against the schema requirements. Documents
// produced by a dispatcher are validated before they are served.
func (n *NodeInfo) Validate() error {
	if n.Software.Name == "" {
		return fmt.Errorf("software name is required")
	}

	if !softwareNamePattern.MatchString(n.Software.Name) {
		return fmt.Errorf("software name [%s] must match pattern %s", n.Software.Name, softwareNamePattern)
	}

	if n.Software.Version == "" {
		return fmt.Errorf("software version is required")
	}

	if len(n.Protocols) == 0 {
		return fmt.Errorf("at least one protocol is required")
	}

	if n.Usage.Users.Total < 0 || n.Usage.LocalPosts < 0 || n.Usage.LocalComments < 0 {
		return fmt.Errorf("usage counters must not be negative")
	}

	return nil
}

// NewNodeInfo returns a NodeInfo document with the protocols defaulted to ActivityPub.
func NewNodeInfo(software Software, usage Usage) *NodeInfo {
	return &NodeInfo{
		Version:   V2_1,
		Software:  software,
		Protocols: []string{activityPubProtocol},
		Services: Services{
			Inbound:  []string{},
			Outbound: []string{},
		},
		Usage: usage,
	}
}
