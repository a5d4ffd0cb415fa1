/*
Package session binds the graph store, navigation, edit and sync engines of one
opened call flow into a FlowSession, and manages many of them for the network
surfaces.

A FlowSession is constructed per opened flow and discarded on close; nothing is
kept at process scope. The Manager adds per-document serialisation of saves,
optionally across replicas through a ports.DistributedLocker.
*/
package session
