package data

import "sort"

//StringSet is a set of strings, typically UUIDs
type StringSet map[string]struct{}

//NewStringSet creates a StringSet holding the given strings
func NewStringSet(strs ...string) StringSet {
	s := make(StringSet, len(strs))
	for _, str := range strs {
		s.Insert(str)
	}
	return s
}

//Items returns the strings in the set as a sorted slice.
func (s StringSet) Items() []string {
	retVal := make([]string, 0, len(s))
	for str := range s {
		retVal = append(retVal, str)
	}
	sort.Strings(retVal)
	return retVal
}

//Insert adds a string to the set
func (s StringSet) Insert(str string) {
	s[str] = struct{}{}
}

//Contains checks if a given string is in the set
func (s StringSet) Contains(str string) bool {
	_, ok := s[str]
	return ok
}

//Int64Set is a set of numeric ids
type Int64Set map[int64]struct{}

//Items returns the integers in the set as a sorted slice.
func (s Int64Set) Items() []int64 {
	retVal := make([]int64, 0, len(s))
	for intVal := range s {
		retVal = append(retVal, intVal)
	}
	sort.Slice(retVal, func(i, j int) bool { return retVal[i] < retVal[j] })
	return retVal
}

//Insert adds a integer to the set
func (s Int64Set) Insert(intVal int64) {
	s[intVal] = struct{}{}
}

//Contains checks if a given integer is in the set
func (s Int64Set) Contains(intVal int64) bool {
	_, ok := s[intVal]
	return ok
}
