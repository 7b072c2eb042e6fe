package data

//UndefinedThreatLevel is assigned when a pulled event refers to an
//unknown threat level
const UndefinedThreatLevel int64 = 4

type (
	//Tag labels events, attributes and cluster relations. Galaxy clusters
	//are attached to events through tags named after ClusterTagName.
	Tag struct {
		Name   string `bson:"name" json:"name"`
		Colour string `bson:"colour,omitempty" json:"colour,omitempty"`
		Local  bool   `bson:"local" json:"local"`
	}

	//Event is a case/incident record
	Event struct {
		ID               int64             `bson:"id" json:"id"`
		UUID             string            `bson:"uuid" json:"uuid"`
		OrgID            int64             `bson:"org_id" json:"org_id"`
		OrgcID           int64             `bson:"orgc_id" json:"orgc_id"`
		Info             string            `bson:"info" json:"info"`
		Date             string            `bson:"date" json:"date"`
		ThreatLevelID    int64             `bson:"threat_level_id" json:"threat_level_id"`
		Analysis         int               `bson:"analysis" json:"analysis"`
		Distribution     Distribution      `bson:"distribution" json:"distribution"`
		SharingGroupID   int64             `bson:"sharing_group_id" json:"sharing_group_id"`
		Published        bool              `bson:"published" json:"published"`
		PublishTimestamp int64             `bson:"publish_timestamp" json:"publish_timestamp"`
		Locked           bool              `bson:"locked" json:"locked"`
		Timestamp        int64             `bson:"timestamp" json:"timestamp"`
		AttributeCount   int               `bson:"attribute_count" json:"attribute_count"`
		Tags             []Tag             `bson:"tags" json:"tags,omitempty"`
		Objects          []Object          `bson:"objects" json:"objects,omitempty"`
		Attributes       []Attribute       `bson:"-" json:"attributes,omitempty"`
		ShadowAttributes []ShadowAttribute `bson:"-" json:"shadow_attributes,omitempty"`
		Orgc             *Organisation     `bson:"-" json:"orgc,omitempty"`
		SharingGroup     *SharingGroup     `bson:"-" json:"sharing_group,omitempty"`
		RelatedEvents    []EventRef        `bson:"-" json:"related_events,omitempty"`
	}

	//EventRef is a lightweight reference to another event.
	//Referenced events are resolved through the store when needed.
	EventRef struct {
		ID   int64  `bson:"id" json:"id"`
		UUID string `bson:"uuid" json:"uuid"`
	}

	//MinimalEvent is the index view of an event used to select
	//sync candidates without fetching full records
	MinimalEvent struct {
		ID             int64        `bson:"id" json:"id"`
		UUID           string       `bson:"uuid" json:"uuid"`
		Timestamp      int64        `bson:"timestamp" json:"timestamp"`
		Published      bool         `bson:"published" json:"published"`
		Locked         bool         `bson:"locked" json:"locked"`
		Distribution   Distribution `bson:"distribution" json:"distribution"`
		SharingGroupID int64        `bson:"sharing_group_id" json:"sharing_group_id"`
		OrgID          int64        `bson:"org_id" json:"org_id"`
		OrgcID         int64        `bson:"orgc_id" json:"orgc_id"`
		OrgcUUID       string       `bson:"orgc_uuid" json:"orgc_uuid"`
		AttributeCount int          `bson:"attribute_count" json:"attribute_count"`
		Tags           []string     `bson:"tags" json:"tags,omitempty"`
	}

	//Attribute is an atomic indicator belonging to an event or object
	Attribute struct {
		ID                 int64        `bson:"id" json:"id"`
		UUID               string       `bson:"uuid" json:"uuid"`
		EventID            int64        `bson:"event_id" json:"event_id"`
		EventUUID          string       `bson:"event_uuid" json:"event_uuid,omitempty"`
		ObjectID           int64        `bson:"object_id" json:"object_id"`
		ObjectRelation     string       `bson:"object_relation,omitempty" json:"object_relation,omitempty"`
		Category           string       `bson:"category" json:"category"`
		Type               string       `bson:"type" json:"type"`
		Value              string       `bson:"value" json:"value"`
		Comment            string       `bson:"comment,omitempty" json:"comment,omitempty"`
		Distribution       Distribution `bson:"distribution" json:"distribution"`
		SharingGroupID     int64        `bson:"sharing_group_id" json:"sharing_group_id"`
		ToIDs              bool         `bson:"to_ids" json:"to_ids"`
		Deleted            bool         `bson:"deleted" json:"deleted"`
		DisableCorrelation bool         `bson:"disable_correlation" json:"disable_correlation"`
		Timestamp          int64        `bson:"timestamp" json:"timestamp"`
		Tags               []Tag        `bson:"tags,omitempty" json:"tags,omitempty"`
	}

	//Object groups attributes of an event under a template name
	Object struct {
		ID             int64        `bson:"id" json:"id"`
		UUID           string       `bson:"uuid" json:"uuid"`
		EventID        int64        `bson:"event_id" json:"event_id"`
		Name           string       `bson:"name" json:"name"`
		MetaCategory   string       `bson:"meta_category" json:"meta-category"`
		Distribution   Distribution `bson:"distribution" json:"distribution"`
		SharingGroupID int64        `bson:"sharing_group_id" json:"sharing_group_id"`
		Deleted        bool         `bson:"deleted" json:"deleted"`
		Timestamp      int64        `bson:"timestamp" json:"timestamp"`
		Attributes     []Attribute  `bson:"-" json:"attributes,omitempty"`
	}

	//ShadowAttribute is a proposal to add or change an attribute of an event
	ShadowAttribute struct {
		ID               int64  `bson:"id" json:"id"`
		UUID             string `bson:"uuid" json:"uuid"`
		OldID            int64  `bson:"old_id" json:"old_id"`
		EventID          int64  `bson:"event_id" json:"event_id"`
		EventUUID        string `bson:"event_uuid" json:"event_uuid"`
		OrgID            int64  `bson:"org_id" json:"org_id"`
		Type             string `bson:"type" json:"type"`
		Category         string `bson:"category" json:"category"`
		Value            string `bson:"value" json:"value"`
		Comment          string `bson:"comment,omitempty" json:"comment,omitempty"`
		ToIDs            bool   `bson:"to_ids" json:"to_ids"`
		Deleted          bool   `bson:"deleted" json:"deleted"`
		ProposalToDelete bool   `bson:"proposal_to_delete" json:"proposal_to_delete"`
		Email            string `bson:"email,omitempty" json:"email,omitempty"`
		Timestamp        int64  `bson:"timestamp" json:"timestamp"`
	}

	//Sighting records that an attribute was observed
	Sighting struct {
		ID            int64  `bson:"id" json:"id"`
		UUID          string `bson:"uuid" json:"uuid"`
		AttributeID   int64  `bson:"attribute_id" json:"attribute_id"`
		AttributeUUID string `bson:"attribute_uuid" json:"attribute_uuid"`
		EventID       int64  `bson:"event_id" json:"event_id"`
		EventUUID     string `bson:"event_uuid" json:"event_uuid"`
		OrgID         int64  `bson:"org_id" json:"org_id"`
		Type          int    `bson:"type" json:"type"`
		Source        string `bson:"source,omitempty" json:"source,omitempty"`
		DateSighting  int64  `bson:"date_sighting" json:"date_sighting"`
	}

	//ThreatLevel names the severity of an event
	ThreatLevel struct {
		ID   int64  `bson:"id" json:"id"`
		Name string `bson:"name" json:"name"`
	}
)

//Minimal builds the index view of the event
func (e *Event) Minimal() MinimalEvent {
	m := MinimalEvent{
		ID:             e.ID,
		UUID:           e.UUID,
		Timestamp:      e.Timestamp,
		Published:      e.Published,
		Locked:         e.Locked,
		Distribution:   e.Distribution,
		SharingGroupID: e.SharingGroupID,
		OrgID:          e.OrgID,
		OrgcID:         e.OrgcID,
		AttributeCount: e.AttributeCount,
	}
	if e.Orgc != nil {
		m.OrgcUUID = e.Orgc.UUID
	}
	for _, tag := range e.Tags {
		m.Tags = append(m.Tags, tag.Name)
	}
	return m
}

//AllAttributes returns the attributes of the event followed by
//the attributes of each of its objects
func (e *Event) AllAttributes() []Attribute {
	all := make([]Attribute, 0, len(e.Attributes))
	all = append(all, e.Attributes...)
	for _, obj := range e.Objects {
		all = append(all, obj.Attributes...)
	}
	return all
}

//TagNames returns the names of the tags attached to the event
func (e *Event) TagNames() []string {
	names := make([]string, 0, len(e.Tags))
	for _, tag := range e.Tags {
		names = append(names, tag.Name)
	}
	return names
}

//Correlatable reports whether the attribute takes part in correlation
func (a *Attribute) Correlatable() bool {
	return !a.Deleted && !a.DisableCorrelation
}
