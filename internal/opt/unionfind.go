/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package opt

// UnionFind is a disjoint-set forest with per-set information. Keys are
// compared by identity, never by display names.
type UnionFind[K comparable, I any] struct {
    keys   []K
    link   map[K]K
    rank   map[K]int
    info   map[K]I
    create func(K) I
    merge  func(I, I) I
}

// NewUnionFind creates an empty forest. create builds the information of a
// new singleton set, merge combines the information of two sets when they
// are joined.
func NewUnionFind[K comparable, I any](create func(K) I, merge func(I, I) I) *UnionFind[K, I] {
    return &UnionFind[K, I] {
        link   : make(map[K]K),
        rank   : make(map[K]int),
        info   : make(map[K]I),
        create : create,
        merge  : merge,
    }
}

// Contains reports whether k has been added to the forest.
func (self *UnionFind[K, I]) Contains(k K) bool {
    _, ok := self.link[k]
    return ok
}

// Find returns the representative of the set containing k and its
// information, adding k as a singleton if needed.
func (self *UnionFind[K, I]) Find(k K) (K, I) {
    if _, ok := self.link[k]; !ok {
        self.keys = append(self.keys, k)
        self.link[k] = k
        self.info[k] = self.create(k)
        return k, self.info[k]
    }

    /* find the root */
    root := k
    for self.link[root] != root {
        root = self.link[root]
    }

    /* path compression */
    for k != root {
        k, self.link[k] = self.link[k], root
    }

    /* all done */
    return root, self.info[root]
}

// Union joins the sets of a and b, returning the new representative and
// whether the two sets were distinct.
func (self *UnionFind[K, I]) Union(a K, b K) (K, bool) {
    ra, ia := self.Find(a)
    rb, ib := self.Find(b)

    /* already joined */
    if ra == rb {
        return ra, false
    }

    /* union by rank */
    if self.rank[ra] < self.rank[rb] {
        ra, rb = rb, ra
        ia, ib = ib, ia
    } else if self.rank[ra] == self.rank[rb] {
        self.rank[ra]++
    }

    /* link and merge the information */
    self.link[rb] = ra
    self.info[ra] = self.merge(ia, ib)
    delete(self.info, rb)
    return ra, true
}

// Roots returns the representative of every set, in the order their first
// member was added.
func (self *UnionFind[K, I]) Roots() []K {
    var ret []K
    var vis = make(map[K]struct{})

    /* collect roots in insertion order */
    for _, k := range self.keys {
        r, _ := self.Find(k)
        if _, ok := vis[r]; !ok {
            vis[r] = struct{}{}
            ret = append(ret, r)
        }
    }

    /* all done */
    return ret
}

// Infos returns the information of every set, ordered like Roots.
func (self *UnionFind[K, I]) Infos() []I {
    rr := self.Roots()
    ret := make([]I, len(rr))

    /* collect the information */
    for i, r := range rr {
        ret[i] = self.info[r]
    }

    /* all done */
    return ret
}
