package server

// RegisterAll wires every command family's descriptors into srv's
// dispatch.Registry. Called once from New before the server starts
// accepting connections.
func RegisterAll(srv *Server) {
	r := srv.Registry
	registerGeneric(r)
	registerStrings(r)
	registerLists(r)
	registerHashes(r)
	registerSets(r)
	registerSortedSets(r)
	registerStreams(r)
	registerJSON(r)
	registerBloom(r)
	registerHll(r)
	registerGeo(r)
	registerCluster(r)
	registerACL(r)
	registerScripting(r)
	registerPersistence(r)
	registerPubSub(r)
	registerIntro(r)
	registerCache(r)
}
