package data

import "fmt"

//Distribution controls which organisations and peers may see an entity
type Distribution int

const (
	//OwnOrganisation restricts the entity to the owning organisation
	OwnOrganisation Distribution = 0
	//ThisCommunity shares with every organisation on the local instance
	ThisCommunity Distribution = 1
	//ConnectedCommunities shares with directly connected instances
	ConnectedCommunities Distribution = 2
	//AllCommunities shares without restriction
	AllCommunities Distribution = 3
	//SharingGroupDistribution restricts the entity to a sharing group
	SharingGroupDistribution Distribution = 4
	//InheritEvent makes attributes and objects follow their event
	InheritEvent Distribution = 5
)

//Downgrade lowers the distribution by one hop:
//connected communities become this community and
//this community becomes own organisation only.
func (d Distribution) Downgrade() Distribution {
	switch d {
	case ConnectedCommunities:
		return ThisCommunity
	case ThisCommunity:
		return OwnOrganisation
	}
	return d
}

//Valid reports whether d is one of the known distribution levels
func (d Distribution) Valid() bool {
	return d >= OwnOrganisation && d <= InheritEvent
}

func (d Distribution) String() string {
	switch d {
	case OwnOrganisation:
		return "own-org"
	case ThisCommunity:
		return "this-community"
	case ConnectedCommunities:
		return "connected-communities"
	case AllCommunities:
		return "all-communities"
	case SharingGroupDistribution:
		return "sharing-group"
	case InheritEvent:
		return "inherit"
	}
	return fmt.Sprintf("distribution(%d)", int(d))
}
