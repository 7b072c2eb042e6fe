package data

type (
	//CorrelationValue is a unique indicator value with a surrogate id
	CorrelationValue struct {
		ID    int64  `bson:"id" json:"id"`
		Value string `bson:"value" json:"value"`
	}

	//CorrelationSide holds the identity and sharing metadata of one
	//attribute taking part in a correlation
	CorrelationSide struct {
		AttributeID         int64        `bson:"attribute_id" json:"attribute_id"`
		ObjectID            int64        `bson:"object_id" json:"object_id"`
		EventID             int64        `bson:"event_id" json:"event_id"`
		EventUUID           string       `bson:"event_uuid" json:"event_uuid"`
		OrgID               int64        `bson:"org_id" json:"org_id"`
		Distribution        Distribution `bson:"distribution" json:"distribution"`
		EventDistribution   Distribution `bson:"event_distribution" json:"event_distribution"`
		SharingGroupID      int64        `bson:"sharing_group_id" json:"sharing_group_id"`
		EventSharingGroupID int64        `bson:"event_sharing_group_id" json:"event_sharing_group_id"`
	}

	//Correlation links two attributes which share a correlation value.
	//Only one record exists per unordered pair.
	Correlation struct {
		ValueID int64           `bson:"value_id" json:"value_id"`
		Side1   CorrelationSide `bson:"side_1" json:"side_1"`
		Side2   CorrelationSide `bson:"side_2" json:"side_2"`
	}

	//OverCorrelatingValue is a value matched by more attributes than the threshold allows
	OverCorrelatingValue struct {
		Value      string `bson:"value" json:"value"`
		Occurrence int    `bson:"occurrence" json:"occurrence"`
	}

	//CorrelatingAttribute is an attribute together with the event
	//fields needed to build a correlation side
	CorrelatingAttribute struct {
		Attribute Attribute
		Event     MinimalEvent
	}
)

//Side builds the correlation side describing the attribute
func (c CorrelatingAttribute) Side() CorrelationSide {
	return CorrelationSide{
		AttributeID:         c.Attribute.ID,
		ObjectID:            c.Attribute.ObjectID,
		EventID:             c.Event.ID,
		EventUUID:           c.Event.UUID,
		OrgID:               c.Event.OrgID,
		Distribution:        c.Attribute.Distribution,
		EventDistribution:   c.Event.Distribution,
		SharingGroupID:      c.Attribute.SharingGroupID,
		EventSharingGroupID: c.Event.SharingGroupID,
	}
}
