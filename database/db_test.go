package database

import (
	"testing"

	"github.com/blang/semver"
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/stretchr/testify/assert"
)

func TestCompatibleMongoDBVersion(t *testing.T) {
	cases := []struct {
		version    string
		compatible bool
	}{
		{"3.6.8", false},
		{"4.0.0", true},
		{"4.2.1", true},
		{"4.4.29", true},
		{"5.0.0", false},
		{"6.0.3", false},
	}
	for _, c := range cases {
		t.Run(c.version, func(t *testing.T) {
			assert.Equal(t, c.compatible, CompatibleMongoDBVersion(semver.MustParse(c.version)))
		})
	}
}

func TestIsCollectionExists(t *testing.T) {
	assert.True(t, IsCollectionExists(&mgo.QueryError{Code: 48}))
	assert.False(t, IsCollectionExists(&mgo.QueryError{Code: 11000}))
	assert.False(t, IsCollectionExists(mgo.ErrNotFound))
}

func TestBulkChangeSize(t *testing.T) {
	selectorOnly := BulkChange{Selector: bson.M{"value": "8.8.8.8"}}
	_, selectorSize := selectorOnly.Size(nil)
	assert.True(t, selectorSize > 0)

	withUpdate := BulkChange{
		Selector: bson.M{"value": "8.8.8.8"},
		Update:   bson.M{"$set": bson.M{"occurrence": 25}},
	}
	_, fullSize := withUpdate.Size(nil)
	assert.True(t, fullSize > selectorSize)
}
