package data

import "strconv"

type (
	//Organisation owns and creates events and clusters
	Organisation struct {
		ID    int64  `bson:"id" json:"id"`
		UUID  string `bson:"uuid" json:"uuid"`
		Name  string `bson:"name" json:"name"`
		Local bool   `bson:"local" json:"local"`
	}

	//SharingGroup is a named set of organisations and servers granted
	//visibility into sharing group distributed entities
	SharingGroup struct {
		ID            int64                `bson:"id" json:"id"`
		UUID          string               `bson:"uuid" json:"uuid"`
		Name          string               `bson:"name" json:"name"`
		Description   string               `bson:"description,omitempty" json:"description,omitempty"`
		Releasability string               `bson:"releasability,omitempty" json:"releasability,omitempty"`
		OrgID         int64                `bson:"org_id" json:"org_id"`
		Roaming       bool                 `bson:"roaming" json:"roaming"`
		Active        bool                 `bson:"active" json:"active"`
		Organisations []SharingGroupOrg    `bson:"organisations" json:"sharing_group_orgs"`
		Servers       []SharingGroupServer `bson:"servers" json:"sharing_group_servers"`
	}

	//SharingGroupOrg lists an organisation as a member of a sharing group
	SharingGroupOrg struct {
		OrgID   int64  `bson:"org_id" json:"org_id"`
		OrgUUID string `bson:"org_uuid,omitempty" json:"org_uuid,omitempty"`
		Extend  bool   `bson:"extend" json:"extend"`
	}

	//SharingGroupServer authorizes a server for a sharing group.
	//ServerID 0 denotes the local instance.
	SharingGroupServer struct {
		ServerID int64 `bson:"server_id" json:"server_id"`
		AllOrgs  bool  `bson:"all_orgs" json:"all_orgs"`
	}

	//Server is a remote peer instance
	Server struct {
		ID                 int64       `bson:"id" json:"id"`
		Name               string      `bson:"name" json:"name"`
		URL                string      `bson:"url" json:"url"`
		AuthKey            string      `bson:"authkey" json:"-"`
		OrgID              int64       `bson:"org_id" json:"org_id"`
		RemoteOrgID        int64       `bson:"remote_org_id" json:"remote_org_id"`
		Push               bool        `bson:"push" json:"push"`
		Pull               bool        `bson:"pull" json:"pull"`
		PushSightings      bool        `bson:"push_sightings" json:"push_sightings"`
		PushGalaxyClusters bool        `bson:"push_galaxy_clusters" json:"push_galaxy_clusters"`
		PullGalaxyClusters bool        `bson:"pull_galaxy_clusters" json:"pull_galaxy_clusters"`
		Internal           bool        `bson:"internal" json:"internal"`
		SelfSigned         bool        `bson:"self_signed" json:"self_signed"`
		LastPulledID       int64       `bson:"last_pulled_id" json:"last_pulled_id"`
		LastPushedID       int64       `bson:"last_pushed_id" json:"last_pushed_id"`
		PullRules          FilterRules `bson:"pull_rules" json:"pull_rules"`
		PushRules          FilterRules `bson:"push_rules" json:"push_rules"`
	}

	//FilterRules are the allow/deny filters of a server keyed by tag and organisation
	FilterRules struct {
		Tags RuleSet `bson:"tags" json:"tags"`
		Orgs RuleSet `bson:"orgs" json:"orgs"`
	}

	//RuleSet holds an allow list (OR) and a deny list (NOT)
	RuleSet struct {
		OR  []string `bson:"OR" json:"OR"`
		NOT []string `bson:"NOT" json:"NOT"`
	}

	//User is the local user a job acts as
	User struct {
		ID               int64  `bson:"id" json:"id"`
		Email            string `bson:"email" json:"email"`
		OrgID            int64  `bson:"org_id" json:"org_id"`
		SiteAdmin        bool   `bson:"site_admin" json:"site_admin"`
		PermSync         bool   `bson:"perm_sync" json:"perm_sync"`
		PermGalaxyEditor bool   `bson:"perm_galaxy_editor" json:"perm_galaxy_editor"`
	}

	//ServerVersion is the version and capability set advertised by a peer
	ServerVersion struct {
		Version          string `json:"version"`
		PermSync         bool   `json:"perm_sync"`
		PermSighting     bool   `json:"perm_sighting"`
		PermGalaxyEditor bool   `json:"perm_galaxy_editor"`
	}

	//ServerSettings is the configuration summary returned by a peer
	ServerSettings struct {
		Version     string `json:"version"`
		WorkerCount int    `json:"worker_count,omitempty"`
		Finalized   bool   `json:"finalized,omitempty"`
	}

	//Blocklists are UUID keyed deny lists consulted before exchanging entities
	Blocklists struct {
		Events   StringSet
		Orgs     StringSet
		Clusters StringSet
	}
)

//NewBlocklists creates empty blocklists
func NewBlocklists() Blocklists {
	return Blocklists{
		Events:   StringSet{},
		Orgs:     StringSet{},
		Clusters: StringSet{},
	}
}

//Empty reports whether neither list of the rule set has entries
func (r RuleSet) Empty() bool {
	return len(r.OR) == 0 && len(r.NOT) == 0
}

//HasMember reports whether the organisation is listed as a member
func (sg *SharingGroup) HasMember(orgID int64) bool {
	for _, org := range sg.Organisations {
		if org.OrgID == orgID {
			return true
		}
	}
	return false
}

//OrgMatchKeys returns the strings an organisation can be referenced by in filter rules
func (o *Organisation) OrgMatchKeys() []string {
	keys := []string{strconv.FormatInt(o.ID, 10)}
	if o.UUID != "" {
		keys = append(keys, o.UUID)
	}
	if o.Name != "" {
		keys = append(keys, o.Name)
	}
	return keys
}
