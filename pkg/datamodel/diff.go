// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"sort"
	"strings"
)

// InferSteps computes the ordered list of declarative MigrationSteps that
// takes base to target: enum deletes, enum creates, model deletes, then every
// new model's CreateModel before any field or index of the new models (so a
// relation field may reference any model created in the same run), then the
// new models' fields and indexes, then, model by model for the models kept
// from base, field deletes followed by field creates and updates in target
// declaration order, and that model's index steps. This keeps every step's
// preconditions (§4.C) satisfied against the partially-applied working copy
// a caller replays them onto.
func InferSteps(base, target *Datamodel) MigrationSteps {
	var steps MigrationSteps

	steps = append(steps, diffEnums(base, target)...)
	steps = append(steps, diffModels(base, target)...)
	for _, tm := range target.Models {
		bm := base.ModelByName(tm.Name)
		if bm == nil {
			continue // already covered by CreateModel, which carries no fields of its own
		}
		steps = append(steps, diffFields(bm, tm)...)
		steps = append(steps, diffIndexes(bm, tm)...)
	}

	return steps
}

func diffEnums(base, target *Datamodel) MigrationSteps {
	var steps MigrationSteps
	for _, be := range base.Enums {
		if target.EnumByName(be.Name) == nil {
			steps = append(steps, &DeleteEnum{Enum: be.Name})
		}
	}
	for _, te := range target.Enums {
		if base.EnumByName(te.Name) == nil {
			steps = append(steps, &CreateEnum{Enum: te.Name, DBName: te.DBName, Values: te.Values, Documentation: te.Documentation})
		}
	}
	return steps
}

func diffModels(base, target *Datamodel) MigrationSteps {
	var steps MigrationSteps
	for _, bm := range base.Models {
		if target.ModelByName(bm.Name) == nil {
			steps = append(steps, &DeleteModel{Model: bm.Name})
		}
	}
	var created []*Model
	for _, tm := range target.Models {
		if base.ModelByName(tm.Name) == nil {
			steps = append(steps, &CreateModel{
				Model: tm.Name, DBName: tm.DBName, Embedded: tm.Embedded,
				Documentation: tm.Documentation, IDFields: tm.IDFields,
			})
			created = append(created, tm)
		}
	}
	for _, tm := range created {
		for _, f := range tm.Fields {
			steps = append(steps, &CreateField{Model: tm.Name, Field: f})
		}
		for _, ix := range tm.Indexes {
			steps = append(steps, &CreateIndex{Model: tm.Name, Index: ix})
		}
	}
	return steps
}

func diffFields(bm, tm *Model) MigrationSteps {
	var steps MigrationSteps
	for _, bf := range bm.Fields {
		if tm.FieldByName(bf.Name) == nil {
			steps = append(steps, &DeleteField{Model: tm.Name, Field: bf.Name})
		}
	}
	for _, tf := range tm.Fields {
		bf := bm.FieldByName(tf.Name)
		if bf == nil {
			steps = append(steps, &CreateField{Model: tm.Name, Field: tf})
			continue
		}
		if upd := fieldUpdate(tm.Name, bf, tf); upd != nil {
			steps = append(steps, upd)
		}
	}
	return steps
}

func fieldUpdate(model string, bf, tf *Field) *UpdateField {
	u := &UpdateField{Model: model, Field: bf.Name}
	changed := false

	if tf.Name != bf.Name {
		n := tf.Name
		u.NewName = &n
		changed = true
	}
	if tf.DBName != bf.DBName {
		n := tf.DBName
		u.NewDBName = &n
		changed = true
	}
	if tf.Arity != bf.Arity {
		a := tf.Arity
		u.NewArity = &a
		changed = true
	}
	if tf.Type != bf.Type {
		t := tf.Type
		u.NewType = &t
		changed = true
	}
	if !defaultsEqual(bf.Default, tf.Default) {
		u.NewDefault = tf.Default
		changed = true
	}
	if tf.IsUnique != bf.IsUnique {
		v := tf.IsUnique
		u.NewIsUnique = &v
		changed = true
	}
	if tf.Documentation != bf.Documentation {
		d := tf.Documentation
		u.NewDocumentation = &d
		changed = true
	}

	if !changed {
		return nil
	}
	return u
}

func defaultsEqual(a, b *Default) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Function != b.Function {
		return false
	}
	if (a.Literal == nil) != (b.Literal == nil) {
		return false
	}
	return a.Literal == nil || *a.Literal == *b.Literal
}

// diffIndexes matches indexes by column tuple rather than name, mirroring
// the SQL-level differ's rename-detection rule (§4.E): an index kept across
// a rename becomes one UpdateIndex rather than a delete/create pair.
func diffIndexes(bm, tm *Model) MigrationSteps {
	var steps MigrationSteps

	fieldKey := func(ix *ModelIndex) string {
		return string(ix.Kind) + "(" + strings.Join(ix.Fields, ",") + ")"
	}

	bByKey := map[string]*ModelIndex{}
	var bKeys []string
	for _, ix := range bm.Indexes {
		k := fieldKey(ix)
		bByKey[k] = ix
		bKeys = append(bKeys, k)
	}
	tByKey := map[string]*ModelIndex{}
	var tKeys []string
	for _, ix := range tm.Indexes {
		k := fieldKey(ix)
		tByKey[k] = ix
		tKeys = append(tKeys, k)
	}
	sort.Strings(bKeys)
	sort.Strings(tKeys)

	for _, k := range bKeys {
		bix := bByKey[k]
		tix, ok := tByKey[k]
		if !ok {
			steps = append(steps, &DeleteIndex{Model: tm.Name, Index: indexName(bm, bix)})
			continue
		}
		oldName, newName := indexName(bm, bix), indexName(tm, tix)
		if oldName != newName {
			n := newName
			steps = append(steps, &UpdateIndex{Model: tm.Name, Index: oldName, NewName: &n})
		}
	}
	for _, k := range tKeys {
		if _, ok := bByKey[k]; !ok {
			steps = append(steps, &CreateIndex{Model: tm.Name, Index: tByKey[k]})
		}
	}
	return steps
}
