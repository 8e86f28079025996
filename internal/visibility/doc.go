// Package visibility resolves which catalog segments a reader sees.
//
// Each reader picks a Policy:
//
//	Snapshot(s)          MVCC visibility under s
//	Vacuum()             every alive segment
//	Mergeable()          alive segments that are not already being merged
//	ParallelWorker(ids)  exactly the segments the leader resolved
//
// Segments eligible for physical removal are never returned, whatever the policy.
package visibility
