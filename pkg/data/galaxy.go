package data

import (
	"fmt"
	"strings"
)

//galaxyTagPrefix starts every tag name which references a galaxy cluster
const galaxyTagPrefix = "misp-galaxy:"

type (
	//Galaxy is a taxonomy grouping galaxy clusters
	Galaxy struct {
		ID          int64  `bson:"id" json:"id"`
		UUID        string `bson:"uuid" json:"uuid"`
		Name        string `bson:"name" json:"name"`
		Type        string `bson:"type" json:"type"`
		Description string `bson:"description" json:"description"`
		Version     string `bson:"version" json:"version"`
		Namespace   string `bson:"namespace" json:"namespace"`
		OrgID       int64  `bson:"org_id" json:"org_id"`
		OrgcID      int64  `bson:"orgc_id" json:"orgc_id"`
		Default     bool   `bson:"default" json:"default"`
	}

	//GalaxyCluster is a node of the knowledge graph belonging to a galaxy
	GalaxyCluster struct {
		ID             int64             `bson:"id" json:"id"`
		UUID           string            `bson:"uuid" json:"uuid"`
		GalaxyID       int64             `bson:"galaxy_id" json:"galaxy_id"`
		Type           string            `bson:"type" json:"type"`
		Value          string            `bson:"value" json:"value"`
		TagName        string            `bson:"tag_name" json:"tag_name"`
		Description    string            `bson:"description" json:"description"`
		Source         string            `bson:"source" json:"source"`
		Authors        []string          `bson:"authors" json:"authors"`
		Version        int64             `bson:"version" json:"version"`
		Distribution   Distribution      `bson:"distribution" json:"distribution"`
		SharingGroupID int64             `bson:"sharing_group_id" json:"sharing_group_id"`
		OrgID          int64             `bson:"org_id" json:"org_id"`
		OrgcID         int64             `bson:"orgc_id" json:"orgc_id"`
		Locked         bool              `bson:"locked" json:"locked"`
		Default        bool              `bson:"default" json:"default"`
		Published      bool              `bson:"published" json:"published"`
		Deleted        bool              `bson:"deleted" json:"deleted"`
		ExtendsUUID    string            `bson:"extends_uuid,omitempty" json:"extends_uuid,omitempty"`
		Elements       []GalaxyElement   `bson:"elements" json:"elements,omitempty"`
		Relations      []ClusterRelation `bson:"relations" json:"relations,omitempty"`
		Galaxy         *Galaxy           `bson:"-" json:"galaxy,omitempty"`
		Orgc           *Organisation     `bson:"-" json:"orgc,omitempty"`
		SharingGroup   *SharingGroup     `bson:"-" json:"sharing_group,omitempty"`
	}

	//GalaxyElement is key/value metadata attached to a cluster
	GalaxyElement struct {
		ID              int64  `bson:"id" json:"id"`
		GalaxyClusterID int64  `bson:"galaxy_cluster_id" json:"galaxy_cluster_id"`
		Key             string `bson:"key" json:"key"`
		Value           string `bson:"value" json:"value"`
	}

	//ClusterRelation is a typed edge from a cluster to another cluster
	ClusterRelation struct {
		ID                          int64        `bson:"id" json:"id"`
		GalaxyClusterID             int64        `bson:"galaxy_cluster_id" json:"galaxy_cluster_id"`
		GalaxyClusterUUID           string       `bson:"galaxy_cluster_uuid" json:"galaxy_cluster_uuid"`
		ReferencedGalaxyClusterUUID string       `bson:"referenced_galaxy_cluster_uuid" json:"referenced_galaxy_cluster_uuid"`
		ReferencedGalaxyClusterType string       `bson:"referenced_galaxy_cluster_type" json:"referenced_galaxy_cluster_type"`
		Distribution                Distribution `bson:"distribution" json:"distribution"`
		SharingGroupID              int64        `bson:"sharing_group_id" json:"sharing_group_id"`
		Default                     bool         `bson:"default" json:"default"`
		Tags                        []Tag        `bson:"tags,omitempty" json:"tags,omitempty"`
	}
)

//ClusterTagName derives the tag name which references a cluster
func ClusterTagName(clusterType, uuid string) string {
	return fmt.Sprintf(`%s%s="%s"`, galaxyTagPrefix, clusterType, uuid)
}

//ParseClusterTagName extracts the cluster type and UUID from a
//galaxy tag name. ok is false if the tag does not reference a cluster.
func ParseClusterTagName(tagName string) (clusterType string, uuid string, ok bool) {
	if !strings.HasPrefix(tagName, galaxyTagPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(tagName, galaxyTagPrefix)
	eq := strings.Index(rest, "=")
	if eq <= 0 {
		return "", "", false
	}
	clusterType = rest[:eq]
	uuid = strings.Trim(rest[eq+1:], `"`)
	if uuid == "" {
		return "", "", false
	}
	return clusterType, uuid, true
}

//Custom reports whether the cluster was created by an organisation
//rather than shipped with the platform
func (c *GalaxyCluster) Custom() bool {
	return !c.Default
}
