package database

import (
	"sync"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	log "github.com/sirupsen/logrus"
)

type (
	// BulkChange represents mgo upserts, updates, and removals
	BulkChange struct {
		Selector  interface{} // The selector document
		Update    interface{} // The update document if updating the document
		Upsert    bool        // Whether to insert in case the document isn't found
		Remove    bool        // Whether to remove the document found rather than updating
		SelectAll bool        // Whether to use RemoveAll/ UpdateAll
	}

	// BulkChanges is a map of collections to the changes that should be applied to each one
	BulkChanges map[string][]BulkChange

	// MgoBulkWriter batches bulk updates for MongoDB
	MgoBulkWriter struct {
		db           *DB              // provides access to MongoDB
		log          *log.Logger      // main logger
		writeChannel chan BulkChanges // holds pending changes
		writeWg      *sync.WaitGroup  // wait for writing to finish
		writerName   string           // used in error reporting
		unordered    bool             // if the operations can be applied in any order, MongoDB can run the updates in parallel
		maxBulkCount int              // max number of changes to include in each bulk update
		maxBulkSize  int              // max total size of BSON documents making up each bulk update
		errLock      sync.Mutex
		err          error // first error returned by MongoDB
	}
)

// Size serializes the changes to BSON using provided buffer and returns total size
// of the BSON description of the changes. Note this method slightly underestimates the
// total amount BSON needed to describe the changes since extra flags may be sent along.
func (m BulkChange) Size(buffer []byte) ([]byte, int) {
	size := 0
	if len(buffer) > 0 { // in case the byte slice has something in it already
		buffer = buffer[:0]
	}

	if m.Selector != nil {
		buffer, _ = bson.MarshalBuffer(m.Selector, buffer)
		size += len(buffer)
		buffer = buffer[:0]
	}
	if m.Update != nil {
		buffer, _ = bson.MarshalBuffer(m.Update, buffer)
		size += len(buffer)
		buffer = buffer[:0]
	}
	return buffer, size
}

// Apply adds the change described to a bulk buffer
func (m BulkChange) Apply(bulk *mgo.Bulk) {
	if m.Selector == nil {
		return // can't describe a change without a selector
	}

	if m.Remove && m.SelectAll {
		bulk.RemoveAll(m.Selector)
	} else if m.Remove /*&& !m.SelectAll*/ {
		bulk.Remove(m.Selector)
	} else if m.Update != nil && m.Upsert {
		bulk.Upsert(m.Selector, m.Update)
	} else if m.Update != nil && m.SelectAll {
		bulk.UpdateAll(m.Selector, m.Update)
	} else if m.Update != nil /*&& !m.Upsert && !m.SelectAll*/ {
		bulk.Update(m.Selector, m.Update)
	}
}

// NewBulkWriter creates a new writer object to write changes to collections
func NewBulkWriter(db *DB, log *log.Logger, unorderedWritesOK bool, writerName string) *MgoBulkWriter {
	return &MgoBulkWriter{
		db:           db,
		log:          log,
		writeChannel: make(chan BulkChanges),
		writeWg:      new(sync.WaitGroup),
		writerName:   writerName,
		unordered:    unorderedWritesOK,
		maxBulkCount: 500,
		maxBulkSize:  15 * 1000 * 1000,
	}
}

// Collect sends a group of changes to the writer
func (w *MgoBulkWriter) Collect(data BulkChanges) {
	w.writeChannel <- data
}

// Close waits for the write thread to finish and returns the
// first error encountered while writing
func (w *MgoBulkWriter) Close() error {
	close(w.writeChannel)
	w.writeWg.Wait()
	w.errLock.Lock()
	defer w.errLock.Unlock()
	return w.err
}

func (w *MgoBulkWriter) runBulk(tgtColl string, bulkBuffer *mgo.Bulk) {
	info, err := bulkBuffer.Run()
	if err == nil {
		return
	}
	w.log.WithFields(log.Fields{
		"Module":     w.writerName,
		"Collection": tgtColl,
		"Info":       info,
	}).Error(err)

	w.errLock.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errLock.Unlock()
}

// Start kicks off a new write thread
func (w *MgoBulkWriter) Start() {
	w.writeWg.Add(1)
	go func() {
		ssn := w.db.Session.Copy()
		defer ssn.Close()

		bulkBuffers := map[string]*mgo.Bulk{}
		bulkBufferSizes := map[string]int{}
		bulkBufferLengths := map[string]int{}
		var sizeBuffer []byte
		var changeSize int

		newBulk := func(tgtColl string) *mgo.Bulk {
			bulkBuffer := ssn.DB(w.db.GetSelectedDB()).C(tgtColl).Bulk()
			if w.unordered {
				bulkBuffer.Unordered()
			}
			return bulkBuffer
		}

		for data := range w.writeChannel {
			for tgtColl, bulkChanges := range data {
				bulkBuffer, bufferExists := bulkBuffers[tgtColl]
				if !bufferExists {
					bulkBuffer = newBulk(tgtColl)
					bulkBuffers[tgtColl] = bulkBuffer
				}

				for _, change := range bulkChanges {
					sizeBuffer, changeSize = change.Size(sizeBuffer)

					if bulkBufferLengths[tgtColl] >= w.maxBulkCount || bulkBufferSizes[tgtColl]+changeSize >= w.maxBulkSize {
						w.runBulk(tgtColl, bulkBuffer)
						// a bulk may only be run once
						bulkBuffer = newBulk(tgtColl)
						bulkBuffers[tgtColl] = bulkBuffer
						bulkBufferLengths[tgtColl] = 0
						bulkBufferSizes[tgtColl] = 0
					}

					change.Apply(bulkBuffer)
					bulkBufferLengths[tgtColl]++
					bulkBufferSizes[tgtColl] += changeSize
				}
			}
		}
		for tgtColl, bulkBuffer := range bulkBuffers {
			if bulkBufferLengths[tgtColl] > 0 {
				w.runBulk(tgtColl, bulkBuffer)
			}
		}
		w.writeWg.Done()
	}()
}
